package events

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
)

// PubSubBus wraps the in-process Bus and also publishes every event to a
// Google Cloud Pub/Sub topic for downstream consumers.
type PubSubBus struct {
	*Bus

	client *pubsub.Client
	topic  *pubsub.Topic
	logger *log.Logger
}

// NewPubSubBus connects to projectID and creates topicID if missing.
func NewPubSubBus(ctx context.Context, projectID, topicID string) (*PubSubBus, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("topic.Exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("CreateTopic: %w", err)
		}
		slog.Info("Created Pub/Sub topic", "topic_id", topicID)
	}

	// Events for one Recko stay in order.
	topic.EnableMessageOrdering = true

	b := &PubSubBus{
		Bus:    NewBus(),
		client: client,
		topic:  topic,
		logger: log.New(log.Writer(), "[PUBSUB] ", log.LstdFlags),
	}
	b.logger.Printf("✅ Connected to Pub/Sub topic: projects/%s/topics/%s", projectID, topicID)
	return b, nil
}

// Emit publishes to Pub/Sub and fans out to in-process subscribers.
func (b *PubSubBus) Emit(eventType, subject string, data map[string]interface{}) {
	event := NewCloudEvent(eventType, subject, data)
	b.publishToPubSub(event)
	b.Bus.Publish(event)
}

func (b *PubSubBus) publishToPubSub(event *CloudEvent) {
	msg, err := toMessage(event)
	if err != nil {
		b.logger.Printf("❌ Failed to marshal event %s: %v", event.ID, err)
		return
	}

	result := b.topic.Publish(context.Background(), msg)
	go func() {
		serverID, err := result.Get(context.Background())
		if err != nil {
			b.logger.Printf("❌ Pub/Sub publish failed: %s → %v", event.ID, err)
			return
		}
		b.logger.Printf("📤 Published %s → msgID=%s (type=%s)", event.ID, serverID, event.Type)
	}()
}

// toMessage maps CloudEvents metadata onto message attributes so consumers
// can filter server-side.
func toMessage(event *CloudEvent) (*pubsub.Message, error) {
	payload, err := event.JSON()
	if err != nil {
		return nil, err
	}
	return &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"ce-specversion": event.SpecVersion,
			"ce-type":        event.Type,
			"ce-source":      event.Source,
			"ce-id":          event.ID,
			"ce-time":        event.Time.Format(time.RFC3339Nano),
		},
		OrderingKey: event.Subject,
	}, nil
}

// HealthCheck verifies the topic is reachable.
func (b *PubSubBus) HealthCheck(ctx context.Context) error {
	exists, err := b.topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("topic health check: %w", err)
	}
	if !exists {
		return fmt.Errorf("topic does not exist")
	}
	return nil
}

// Close flushes pending messages and closes the client.
func (b *PubSubBus) Close() error {
	b.topic.Stop()
	if err := b.client.Close(); err != nil {
		return fmt.Errorf("pubsub client close: %w", err)
	}
	b.logger.Printf("🔌 Pub/Sub client closed")
	return nil
}

var _ Emitter = (*PubSubBus)(nil)
