// Package newsletter drafts newsletter bodies for businesses, using a
// generative model when one is available and a fixed template otherwise.
package newsletter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/arecko/backend/internal/metrics"
)

// DefaultBusinessName is used when the request leaves it blank.
const DefaultBusinessName = "Our Business"

// Draft sources.
const (
	SourceAI       = "ai"
	SourceTemplate = "template"
)

// instMarker separates an echoed instruction prompt from the answer in
// some instruction-tuned model outputs.
const instMarker = "[/INST]"

var errEmptyOutput = errors.New("model returned no text")

// TextModel generates text for a prompt.
type TextModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Request describes the newsletter to draft.
type Request struct {
	Topic        string `json:"topic"`
	KeyPoints    string `json:"key_points"`
	Tone         string `json:"tone"`
	BusinessName string `json:"business_name"`
}

func (r Request) normalized() Request {
	r.Topic = strings.TrimSpace(r.Topic)
	r.KeyPoints = strings.TrimSpace(r.KeyPoints)
	r.Tone = string(ParseTone(r.Tone))
	if strings.TrimSpace(r.BusinessName) == "" {
		r.BusinessName = DefaultBusinessName
	}
	return r
}

// Result is a drafted newsletter body.
type Result struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Config tunes the generator.
type Config struct {
	Timeout time.Duration
	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32
	// OpenFor is how long the breaker stays open before probing again.
	OpenFor time.Duration
}

// Generator drafts newsletters. A nil model always uses the template.
type Generator struct {
	model   TextModel
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *log.Logger
}

// NewGenerator wraps model in a circuit breaker.
func NewGenerator(model TextModel, cfg Config, m *metrics.Metrics) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 3
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = time.Minute
	}
	logger := log.New(log.Writer(), "[NEWSLETTER] ", log.LstdFlags)

	return &Generator{
		model: model,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "newsletter-model",
			MaxRequests: 1,
			Timeout:     cfg.OpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Printf("⚠️  Circuit breaker %s: %s → %s", name, from, to)
			},
		}),
		timeout: cfg.Timeout,
		metrics: m,
		logger:  logger,
	}
}

// BuildPrompt renders the model instruction for req.
func BuildPrompt(req Request) string {
	req = req.normalized()
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %s business newsletter for %s about: %s.",
		Tone(req.Tone).style().description, req.BusinessName, req.Topic)
	if req.KeyPoints != "" {
		fmt.Fprintf(&b, " Include these key points: %s.", req.KeyPoints)
	}
	b.WriteString(" Keep it concise (3-4 paragraphs). Do not include subject line or headers, just the body content.")
	return b.String()
}

// Fallback renders the template newsletter for req.
func Fallback(req Request) string {
	req = req.normalized()
	style := Tone(req.Tone).style()

	details := "We have some exciting updates we'd love to share with you."
	if req.KeyPoints != "" {
		details = "Here's what you need to know: " + req.KeyPoints
	}

	return fmt.Sprintf(`%s

We're excited to share some news with you about %s!

At %s, we're always working to bring you the best experience possible. %s

Thank you for being part of our community. We truly appreciate your continued support and trust in us.

%s
%s`, style.greeting, req.Topic, req.BusinessName, details, style.closing, req.BusinessName)
}

// cleanOutput keeps only the text after the last instruction marker.
func cleanOutput(s string) string {
	if i := strings.LastIndex(s, instMarker); i >= 0 {
		s = s[i+len(instMarker):]
	}
	return strings.TrimSpace(s)
}

// Generate drafts a newsletter. It never fails: any model error, timeout,
// open breaker or empty output falls back to the template.
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	req = req.normalized()

	if g.model != nil {
		content, err := g.fromModel(ctx, req)
		if err == nil {
			g.metrics.RecordNewsletterDraft(SourceAI)
			return Result{Content: content, Source: SourceAI}
		}
		g.logger.Printf("Model unavailable, using template: %v", err)
	}

	g.metrics.RecordNewsletterDraft(SourceTemplate)
	return Result{Content: Fallback(req), Source: SourceTemplate}
}

func (g *Generator) fromModel(ctx context.Context, req Request) (string, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		text, err := g.model.Generate(ctx, BuildPrompt(req))
		if err != nil {
			return nil, err
		}
		text = cleanOutput(text)
		if text == "" {
			return nil, errEmptyOutput
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
