package mailer

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/arecko/backend/internal/metrics"
)

// ErrClosed is returned when enqueueing on a closed dispatcher.
var ErrClosed = errors.New("dispatcher closed")

// ErrQueueFull is returned when the queue cannot take another message.
var ErrQueueFull = errors.New("mail queue full")

// Dispatcher sends mail asynchronously through a bounded queue and a fixed
// worker pool.
type Dispatcher struct {
	sender  Sender
	metrics *metrics.Metrics
	timeout time.Duration
	queue   chan *Message
	logger  *log.Logger
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// DispatcherConfig sizes the worker pool.
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	// SendTimeout bounds one delivery including retries.
	SendTimeout time.Duration
}

// NewDispatcher starts the worker pool.
func NewDispatcher(sender Sender, m *metrics.Metrics, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 2 * time.Minute
	}
	d := &Dispatcher{
		sender:  sender,
		metrics: m,
		timeout: cfg.SendTimeout,
		queue:   make(chan *Message, cfg.QueueSize),
		logger:  log.New(log.Writer(), "[MAIL] ", log.LstdFlags),
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue schedules msg for delivery. A full queue drops the message.
func (d *Dispatcher) Enqueue(msg *Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- msg:
		return nil
	default:
		d.logger.Printf("⚠️  Mail queue full, dropping %s to %s", msg.Kind, msg.To)
		d.metrics.RecordEmail(string(msg.Kind), "dropped")
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg *Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sender.Send(ctx, msg); err != nil {
		d.logger.Printf("❌ Failed to send %s to %s: %v", msg.Kind, msg.To, err)
		d.metrics.RecordEmail(string(msg.Kind), "failed")
		return
	}
	d.logger.Printf("✅ Sent %s to %s", msg.Kind, msg.To)
	d.metrics.RecordEmail(string(msg.Kind), "sent")
}

// Close stops accepting messages and waits for queued ones to be sent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

// SendNewsletter queues content for every comma-separated address in
// recipients and returns how many were queued. Failures for one address are
// logged and do not stop the rest.
func (d *Dispatcher) SendNewsletter(senderName, replyTo, recipients, content string) int {
	queued := 0
	for _, addr := range SplitRecipients(recipients) {
		msg, err := Newsletter(addr, senderName, replyTo, content)
		if err == nil {
			err = d.Enqueue(msg)
		}
		if err != nil {
			d.logger.Printf("❌ Failed to send to %s: %v", addr, err)
			continue
		}
		queued++
	}
	return queued
}

// SplitRecipients splits a comma-separated list, trimming blanks.
func SplitRecipients(recipients string) []string {
	var out []string
	for _, addr := range strings.Split(recipients, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
