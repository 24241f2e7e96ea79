package mailer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
	"go.uber.org/goleak"

	"github.com/arecko/backend/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSender struct {
	mu   sync.Mutex
	sent []*Message
	fail map[string]bool
}

func (r *recordingSender) Send(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[msg.To] {
		return errors.New("boom")
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingSender) recipients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.sent {
		out = append(out, m.To)
	}
	return out
}

func TestReferralRequestMessage(t *testing.T) {
	msg, err := DefaultLinks().ReferralRequest("c@example.com", "Joe's Garage", "joe@example.com", "Thanks <3")
	require.NoError(t, err)

	assert.Equal(t, KindReferralRequest, msg.Kind)
	assert.Equal(t, "joe@example.com", msg.ReplyTo)
	assert.Equal(t, "Thank you from Joe's Garage - We'd love your Arecko-mendation!", msg.Subject)
	assert.Contains(t, msg.Text, "https://www.arecko.com/post/")
	assert.Contains(t, msg.HTML, "Thanks &lt;3")
}

func TestReferralNotificationMessage(t *testing.T) {
	msg, err := DefaultLinks().ReferralNotification("joe@example.com", "Joe's Garage", "Alice", "Great service")
	require.NoError(t, err)

	assert.Equal(t, "New Arecko-mendation for Joe's Garage!", msg.Subject)
	assert.Equal(t, "A new referral has been posted for your business by Alice. Log in to verify it!", msg.Text)
	assert.Contains(t, msg.HTML, "business/dashboard")
}

func TestNewsletterParagraphs(t *testing.T) {
	msg, err := Newsletter("c@example.com", "joe", "", "First.\n\nSecond.")
	require.NoError(t, err)
	assert.Equal(t, "Newsletter from joe", msg.Subject)
	assert.Contains(t, msg.HTML, "<p>First.</p>")
	assert.Contains(t, msg.HTML, "<p>Second.</p>")
}

// headerLines returns the header block of a rendered message, one entry per
// line.
func headerLines(t *testing.T, m *mail.Msg) []string {
	t.Helper()
	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	head, _, found := strings.Cut(buf.String(), "\r\n\r\n")
	require.True(t, found)
	return strings.Split(head, "\r\n")
}

func hasHeader(lines []string, name string) bool {
	for _, l := range lines {
		if strings.HasPrefix(strings.ToLower(l), strings.ToLower(name)+":") {
			return true
		}
	}
	return false
}

func TestBuildMsg(t *testing.T) {
	m, err := buildMsg("Arecko <noreply@arecko.com>", &Message{
		To: "c@example.com", ReplyTo: "joe@example.com", Subject: "Hi", Text: "plain", HTML: "<p>html</p>",
	})
	require.NoError(t, err)

	lines := headerLines(t, m)
	assert.True(t, hasHeader(lines, "Reply-To"))
	assert.True(t, hasHeader(lines, "Subject"))

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "multipart/alternative")
	assert.Contains(t, buf.String(), "text/html")
}

func TestBuildMsg_RejectsReplyToWithHeaders(t *testing.T) {
	_, err := buildMsg("noreply@arecko.com", &Message{
		To: "cust@example.com", ReplyTo: "biz@example.com\r\nBcc: victim@evil.test", Text: "x",
	})
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestSMTPSender_RejectsHeaderBreaks(t *testing.T) {
	s := newTestSender(t, time.Second)
	calls := 0
	s.deliver = func(context.Context, *mail.Msg) error {
		calls++
		return nil
	}

	for _, msg := range []*Message{
		{To: "cust@example.com", ReplyTo: "biz@example.com\r\nBcc: victim@evil.test"},
		{To: "cust@example.com\nBcc: victim@evil.test"},
		{To: "cust@example.com", Subject: "Hi\r\nBcc: victim@evil.test"},
	} {
		assert.ErrorIs(t, s.Send(context.Background(), msg), ErrInvalidHeader)
	}
	assert.Zero(t, calls)
}

func TestReferralRequestSubjectIsOneLine(t *testing.T) {
	msg, err := DefaultLinks().ReferralRequest("c@example.com", "Joe's\r\nBcc: victim@evil.test", "", "")
	require.NoError(t, err)
	assert.NotContains(t, msg.Subject, "\n")
	assert.NoError(t, msg.validate())

	m, err := buildMsg("noreply@arecko.com", msg)
	require.NoError(t, err)
	assert.False(t, hasHeader(headerLines(t, m), "Bcc"))
}

func newTestSender(t *testing.T, maxElapsed time.Duration) *SMTPSender {
	t.Helper()
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", From: "noreply@arecko.com", MaxElapsed: maxElapsed})
	require.NoError(t, err)
	return s
}

func TestSMTPSender_RetriesTransientErrors(t *testing.T) {
	s := newTestSender(t, 5*time.Second)
	calls := 0
	s.deliver = func(_ context.Context, m *mail.Msg) error {
		calls++
		assert.Contains(t, strings.Join(headerLines(t, m), "\n"), "c@example.com")
		if calls < 2 {
			return errors.New("connection reset")
		}
		return nil
	}

	require.NoError(t, s.Send(context.Background(), &Message{To: "c@example.com", Text: "x"}))
	assert.Equal(t, 2, calls)
}

func TestSMTPSender_PermanentError(t *testing.T) {
	s := newTestSender(t, 0)
	calls := 0
	s.deliver = func(context.Context, *mail.Msg) error {
		calls++
		return &mail.SendError{Reason: mail.ErrSMTPRcptTo}
	}

	err := s.Send(context.Background(), &Message{To: "c@example.com"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestSMTPSender_NoRecipient(t *testing.T) {
	s := newTestSender(t, 0)
	assert.ErrorIs(t, s.Send(context.Background(), &Message{}), ErrNoRecipient)
}

func TestDispatcher_DeliversAndDrains(t *testing.T) {
	sender := &recordingSender{fail: map[string]bool{"bad@example.com": true}}
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(sender, m, DispatcherConfig{Workers: 2})

	for _, to := range []string{"a@example.com", "b@example.com", "bad@example.com"} {
		require.NoError(t, d.Enqueue(&Message{Kind: KindReferralRequest, To: to}))
	}
	d.Close()

	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, sender.recipients())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmailsSent.WithLabelValues("referral_request", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSent.WithLabelValues("referral_request", "failed")))

	assert.ErrorIs(t, d.Enqueue(&Message{To: "late@example.com"}), ErrClosed)
	d.Close()
}

type blockingSender struct{ release chan struct{} }

func (b *blockingSender) Send(context.Context, *Message) error {
	<-b.release
	return nil
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	sender := &blockingSender{release: make(chan struct{})}
	d := NewDispatcher(sender, nil, DispatcherConfig{Workers: 1, QueueSize: 1})

	require.NoError(t, d.Enqueue(&Message{To: "1@example.com"}))
	// Wait until the worker holds the first message so the queue is empty.
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, d.Enqueue(&Message{To: "2@example.com"}))
	assert.ErrorIs(t, d.Enqueue(&Message{To: "3@example.com"}), ErrQueueFull)

	close(sender.release)
	d.Close()
}

func TestSendNewsletter(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, nil, DispatcherConfig{Workers: 1})

	n := d.SendNewsletter("joe", "joe@example.com", " a@example.com, ,b@example.com ,", "News")
	d.Close()

	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, sender.recipients())
	assert.True(t, strings.HasPrefix(sender.sent[0].Subject, "Newsletter from"))
}
