package solicit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/arecko/backend/internal/database"
	"github.com/arecko/backend/internal/mailer"
	"github.com/arecko/backend/internal/metrics"
)

var (
	ErrInvalidEmail  = errors.New("invalid email address")
	ErrNoEmails      = errors.New("no valid emails found")
	ErrMissingAPIKey = errors.New("API key required")
	ErrInvalidAPIKey = errors.New("invalid API key")
	ErrRateLimited   = errors.New("rate limit exceeded")
)

// Enqueuer accepts outbound mail for delivery.
type Enqueuer interface {
	Enqueue(msg *mailer.Message) error
}

// Solicitor records referral requests and queues the matching emails.
type Solicitor struct {
	store   database.Store
	mail    Enqueuer
	links   mailer.Links
	quota   Quota
	metrics *metrics.Metrics
	logger  *log.Logger
}

// NewSolicitor wires a Solicitor. A nil quota uses an in-memory daily window.
func NewSolicitor(store database.Store, mail Enqueuer, links mailer.Links, quota Quota, m *metrics.Metrics) *Solicitor {
	if quota == nil {
		quota = NewMemoryQuota(DefaultDailyLimit)
	}
	return &Solicitor{
		store:   store,
		mail:    mail,
		links:   links,
		quota:   quota,
		metrics: m,
		logger:  log.New(log.Writer(), "[SOLICIT] ", log.LstdFlags),
	}
}

// BulkResult summarises a bulk send.
type BulkResult struct {
	Sent     int    `json:"sent"`
	Total    int    `json:"total"`
	CSVError string `json:"csv_error,omitempty"`
}

// Failure is one address the API could not send to.
type Failure struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// APIResult is returned to CRM callers.
type APIResult struct {
	Success   bool      `json:"success"`
	Sent      int       `json:"sent"`
	Failed    []Failure `json:"failed"`
	Total     int       `json:"total"`
	Remaining int       `json:"rate_limit_remaining"`
}

// send records the request and queues the email.
func (s *Solicitor) send(ctx context.Context, business *database.User, email, personalMessage string) error {
	req := &database.ReferralRequest{BusinessUserID: business.ID, CustomerEmail: email}
	if err := s.store.CreateReferralRequest(ctx, req); err != nil {
		return fmt.Errorf("record referral request: %w", err)
	}

	msg, err := s.links.ReferralRequest(email, business.Name(), business.Email, personalMessage)
	if err != nil {
		return err
	}
	return s.mail.Enqueue(msg)
}

// SendSingle sends one referral request.
func (s *Solicitor) SendSingle(ctx context.Context, business *database.User, email, personalMessage string) error {
	if !ValidEmail(email) {
		return ErrInvalidEmail
	}
	return s.send(ctx, business, email, personalMessage)
}

// SendBulk sends to the union of addresses found in paste and in the
// optional CSV. A CSV read error is reported in the result but does not stop
// the pasted addresses from being sent.
func (s *Solicitor) SendBulk(ctx context.Context, business *database.User, paste string, csvFile io.Reader, personalMessage string) (*BulkResult, error) {
	res := &BulkResult{}
	emails := ExtractEmails(paste)
	if csvFile != nil {
		fromCSV, err := EmailsFromCSV(csvFile)
		if err != nil {
			res.CSVError = err.Error()
		}
		emails = append(emails, fromCSV...)
	}

	emails = dedupe(emails)
	if len(emails) == 0 {
		return res, ErrNoEmails
	}

	res.Total = len(emails)
	for _, email := range emails {
		if err := s.send(ctx, business, email, personalMessage); err != nil {
			s.logger.Printf("❌ Failed to send to %s: %v", email, err)
			continue
		}
		res.Sent++
	}
	return res, nil
}

// SendAPI serves CRM requests authenticated by API key. One call consumes
// one unit of the key's daily quota regardless of how many emails it
// carries.
func (s *Solicitor) SendAPI(ctx context.Context, key string, emails []string, personalMessage string) (*APIResult, error) {
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	apiKey, err := s.store.GetAPIKey(ctx, key)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, err
	}
	business, err := s.store.GetUser(ctx, apiKey.UserID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, err
	}

	allowed, remaining, err := s.quota.Take(ctx, key)
	if err != nil {
		return nil, err
	}
	if !allowed {
		s.metrics.RecordQuotaRejection()
		return &APIResult{Remaining: 0}, ErrRateLimited
	}

	if len(emails) == 0 {
		return nil, ErrNoEmails
	}

	res := &APIResult{Success: true, Failed: []Failure{}, Total: len(emails), Remaining: remaining}
	for _, email := range emails {
		if !ValidEmail(email) {
			res.Failed = append(res.Failed, Failure{Email: email, Reason: "Invalid email format"})
			continue
		}
		if err := s.send(ctx, business, email, personalMessage); err != nil {
			res.Failed = append(res.Failed, Failure{Email: email, Reason: err.Error()})
			continue
		}
		res.Sent++
	}
	return res, nil
}

// EnsureAPIKey returns the user's key, creating one on first use.
func (s *Solicitor) EnsureAPIKey(ctx context.Context, userID int64) (*database.APIKey, error) {
	k, err := s.store.GetAPIKeyByUser(ctx, userID)
	if err == nil {
		return k, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	return s.RegenerateAPIKey(ctx, userID)
}

// RegenerateAPIKey replaces the user's key with a fresh one.
func (s *Solicitor) RegenerateAPIKey(ctx context.Context, userID int64) (*database.APIKey, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	k := &database.APIKey{UserID: userID, Key: key}
	if err := s.store.SaveAPIKey(ctx, k); err != nil {
		return nil, fmt.Errorf("save api key: %w", err)
	}
	return k, nil
}

// History lists the user's past requests, newest first.
func (s *Solicitor) History(ctx context.Context, userID int64) ([]*database.ReferralRequest, error) {
	return s.store.ListReferralRequests(ctx, userID)
}
