package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arecko/backend/internal/accounts"
	"github.com/arecko/backend/internal/database"
	"github.com/arecko/backend/internal/events"
	"github.com/arecko/backend/internal/mailer"
	"github.com/arecko/backend/internal/media"
	"github.com/arecko/backend/internal/newsletter"
	"github.com/arecko/backend/internal/referrals"
	"github.com/arecko/backend/internal/solicit"
)

type fakeMail struct {
	mu         sync.Mutex
	msgs       []*mailer.Message
	newsletter []string
}

func (f *fakeMail) Enqueue(msg *mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeMail) SendNewsletter(senderName, replyTo, recipients, content string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newsletter = mailer.SplitRecipients(recipients)
	return len(f.newsletter)
}

type testServer struct {
	t     *testing.T
	h     http.Handler
	store *database.MemoryStore
	mail  *fakeMail
	media *media.LocalStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithCloud(t, "")
}

func newTestServerWithCloud(t *testing.T, cloudName string) *testServer {
	t.Helper()
	store := database.NewMemoryStore()
	mail := &fakeMail{}
	local, err := media.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	uploader := media.NewUploader(local, nil, nil)
	resolver := media.NewResolver("", cloudName)

	acc := accounts.NewService(store, uploader, accounts.NewTokenIssuer("test-secret", time.Hour))
	refs := referrals.NewService(referrals.Deps{
		Store:    store,
		Resolver: resolver,
		Media:    uploader,
		Mail:     mail,
		Links:    mailer.DefaultLinks(),
		Events:   events.NewBus(),
	})
	sol := solicit.NewSolicitor(store, mail, mailer.DefaultLinks(), solicit.NewMemoryQuota(2), nil)

	h := NewRouter(Deps{
		Accounts:    acc,
		Referrals:   refs,
		Solicitor:   sol,
		Newsletters: mail,
		Drafter:     newsletter.NewGenerator(nil, newsletter.Config{}, nil),
		Resolver:    resolver,
		MediaStore:  local,
		Health: map[string]HealthCheck{
			"database": store.Ping,
		},
		CORSOrigins: []string{"*"},
		DailyLimit:  2,
		AccessLog:   io.Discard,
	})
	return &testServer{t: t, h: h, store: store, mail: mail, media: local}
}

func (s *testServer) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) json(method, path, token string, v interface{}) *httptest.ResponseRecorder {
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		require.NoError(s.t, err)
		body = bytes.NewReader(b)
	}
	return s.do(method, path, token, body, "application/json")
}

func (s *testServer) form(method, path, token string, values url.Values) *httptest.ResponseRecorder {
	return s.do(method, path, token, strings.NewReader(values.Encode()), "application/x-www-form-urlencoded")
}

func (s *testServer) signup(username string, business bool) string {
	path := "/api/v1/signup"
	if business {
		path += "/business"
	}
	rec := s.json(http.MethodPost, path, "", map[string]string{
		"name":      strings.ToUpper(username[:1]) + username[1:],
		"username":  username,
		"password1": "password123",
		"password2": "password123",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	var session accounts.Session
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &session))
	return session.Token
}

func (s *testServer) postRecko(token, business string) int64 {
	rec := s.form(http.MethodPost, "/api/v1/reckos", token, url.Values{
		"business_name": {business},
		"industry":      {"restaurant"},
		"story":         {"Best tacos in town."},
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	var v struct {
		ID int64 `json:"id"`
	}
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// ============================================================================
// ACCOUNTS
// ============================================================================

func TestSignupAndLogin(t *testing.T) {
	s := newTestServer(t)
	s.signup("alice", false)

	rec := s.json(http.MethodPost, "/api/v1/login", "", map[string]string{"username": "alice", "password": "password123"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["token"])

	rec = s.json(http.MethodPost, "/api/v1/login", "", map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignup_Validation(t *testing.T) {
	s := newTestServer(t)
	s.signup("alice", false)

	cases := map[string]map[string]string{
		"taken":    {"name": "A", "username": "ALICE", "password1": "password123", "password2": "password123"},
		"mismatch": {"name": "B", "username": "bob", "password1": "password123", "password2": "password124"},
		"short":    {"name": "B", "username": "bob", "password1": "short", "password2": "short"},
		"missing":  {"username": "bob", "password1": "password123", "password2": "password123"},
	}
	for name, body := range cases {
		rec := s.json(http.MethodPost, "/api/v1/signup", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}

	rec := s.do(http.MethodPost, "/api/v1/signup", "", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidToken(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/api/v1/reckos", "not-a-token", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateProfileWithPicture(t *testing.T) {
	s := newTestServer(t)
	token := s.signup("alice", false)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("display_name", "Alice A."))
	require.NoError(t, mw.WriteField("bio", "Taco fan"))
	fw, err := mw.CreateFormFile("profile_picture", "me.png")
	require.NoError(t, err)
	fw.Write([]byte("\x89PNG fake"))
	require.NoError(t, mw.Close())

	rec := s.do(http.MethodPut, "/api/v1/profile", token, &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/users/alice", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Alice A.", body["user"].(map[string]interface{})["display_name"])
	picture, ok := body["picture_url"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(picture, "/media/files/image/upload/profiles/"), picture)

	rec = s.do(http.MethodGet, picture, "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "\x89PNG fake", rec.Body.String())
}

func TestDeleteAccount(t *testing.T) {
	s := newTestServer(t)
	token := s.signup("alice", false)
	id := s.postRecko(token, "Taco Shop")

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodDelete, "/api/v1/account", "", nil, "").Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/api/v1/account", token, nil, "").Code)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, fmt.Sprintf("/api/v1/reckos/%d", id), "", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/reckos", token, nil, "").Code)
}

// ============================================================================
// RECKOS
// ============================================================================

func TestPostAndFeed(t *testing.T) {
	s := newTestServer(t)
	token := s.signup("alice", false)
	s.postRecko(token, "Taco Shop")
	s.postRecko("", "Burger Barn")

	rec := s.do(http.MethodGet, "/api/v1/reckos?page=abc", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode(t, rec)
	assert.EqualValues(t, 1, page["page"])
	assert.EqualValues(t, 2, page["total"])
	items := page["items"].([]interface{})
	require.Len(t, items, 2)
	assert.Equal(t, "Anonymous", items[0].(map[string]interface{})["poster_name"])
	assert.Equal(t, "Alice", items[1].(map[string]interface{})["poster_name"])
}

func TestPostRecko_Errors(t *testing.T) {
	s := newTestServer(t)
	biz := s.signup("tacoshop", true)

	rec := s.form(http.MethodPost, "/api/v1/reckos", biz, url.Values{"business_name": {"X"}, "story": {"y"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.form(http.MethodPost, "/api/v1/reckos", "", url.Values{"business_name": {"X"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyFlow(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice", false)
	biz := s.signup("tacoshop", true)
	id := s.postRecko(alice, "Tacoshop Downtown")
	path := fmt.Sprintf("/api/v1/reckos/%d/verify", id)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, path, "", nil, "").Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, path, alice, nil, "").Code)

	rec := s.do(http.MethodPost, path, biz, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode(t, rec)
	assert.Equal(t, true, res["success"])
	assert.Nil(t, res["user_status"])
	assert.EqualValues(t, 1, res["verified_count"])

	rec = s.do(http.MethodGet, "/api/v1/business/dashboard", biz, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decode(t, rec)
	assert.Len(t, dash["verified_referrals"], 1)
	assert.Len(t, dash["pending_referrals"], 0)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/v1/reckos/999/verify", biz, nil, "").Code)
}

func TestReactionsAndComments(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice", false)
	id := s.postRecko(alice, "Taco Shop")
	base := fmt.Sprintf("/api/v1/reckos/%d", id)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, base+"/reactions?type=love", "", nil, "").Code)

	rec := s.do(http.MethodPost, base+"/reactions?type=love", alice, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decode(t, rec)
	assert.EqualValues(t, 1, sum["total"])
	assert.Equal(t, "love", sum["user_reaction"])

	rec = s.do(http.MethodPost, base+"/reactions?type=love", alice, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["total"])

	rec = s.json(http.MethodPost, base+"/comments", alice, map[string]string{"text": "So good"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.json(http.MethodPost, base+"/comments", alice, map[string]string{"text": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, base, alice, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["comments"], 1)
}

func TestDeleteRecko(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice", false)
	bob := s.signup("bob", false)
	id := s.postRecko(alice, "Taco Shop")
	path := fmt.Sprintf("/api/v1/reckos/%d", id)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, path, bob, nil, "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodDelete, path, alice, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, path, alice, nil, "").Code)
}

func TestUserProfile_NotFound(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/users/ghost", "", nil, "").Code)
}

// ============================================================================
// SOLICITATION & NEWSLETTER
// ============================================================================

func TestReferralRequests(t *testing.T) {
	s := newTestServer(t)
	biz := s.signup("tacoshop", true)

	rec := s.do(http.MethodGet, "/api/v1/referral-requests", biz, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	key := decode(t, rec)["api_key"].(string)
	assert.Len(t, key, 64)

	rec = s.form(http.MethodPost, "/api/v1/referral-requests", biz, url.Values{
		"mode": {"single"}, "customer_email": {"c@example.com"}, "personal_message": {"Thanks!"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.form(http.MethodPost, "/api/v1/referral-requests", biz, url.Values{
		"mode": {"bulk"}, "bulk_emails": {"a@example.com, b@example.com; a@example.com"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["sent"])

	rec = s.form(http.MethodPost, "/api/v1/referral-requests", biz, url.Values{"mode": {"single"}, "customer_email": {"nope"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.form(http.MethodPost, "/api/v1/referral-requests", biz, url.Values{"mode": {"generate_api_key"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, key, decode(t, rec)["api_key"])

	rec = s.do(http.MethodGet, "/api/v1/referral-requests", biz, nil, "")
	assert.Len(t, decode(t, rec)["referral_requests"], 3)
	assert.Len(t, s.mail.msgs, 3)
}

func TestReferralRequests_BulkCSV(t *testing.T) {
	s := newTestServer(t)
	biz := s.signup("tacoshop", true)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("mode", "bulk"))
	fw, err := mw.CreateFormFile("csv_file", "customers.csv")
	require.NoError(t, err)
	fw.Write([]byte("Name,Email Address\nAnn,ann@example.com\nBen,not-an-email\n"))
	require.NoError(t, mw.Close())

	rec := s.do(http.MethodPost, "/api/v1/referral-requests", biz, &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode(t, rec)["sent"])
}

func TestAPIReferralRequest(t *testing.T) {
	s := newTestServer(t)
	biz := s.signup("tacoshop", true)
	key := decode(t, s.do(http.MethodGet, "/api/v1/referral-requests", biz, nil, ""))["api_key"].(string)

	rec := s.do(http.MethodPost, "/api/referral-request", "", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.json(http.MethodPost, "/api/referral-request", "", map[string]interface{}{"emails": []string{"a@example.com"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = s.json(http.MethodPost, "/api/referral-request", "", map[string]interface{}{"api_key": "bogus", "emails": "a@example.com"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.json(http.MethodPost, "/api/referral-request", "", map[string]interface{}{
		"api_key": key, "emails": []string{"a@example.com", "broken"}, "message": "Hi",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode(t, rec)
	assert.EqualValues(t, 1, res["sent"])
	assert.EqualValues(t, 2, res["total"])
	assert.EqualValues(t, 1, res["rate_limit_remaining"])
	failed := res["failed"].([]interface{})
	require.Len(t, failed, 1)
	assert.Equal(t, "Invalid email format", failed[0].(map[string]interface{})["reason"])

	rec = s.json(http.MethodPost, "/api/referral-request", "", map[string]interface{}{"api_key": key, "emails": "c@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.json(http.MethodPost, "/api/referral-request", "", map[string]interface{}{"api_key": key, "emails": "d@example.com"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	limited := decode(t, rec)
	assert.Equal(t, "tomorrow", limited["retry_after"])
	assert.EqualValues(t, 0, limited["rate_limit_remaining"])
}

func TestAPIReferralRequest_BodyTooLarge(t *testing.T) {
	s := newTestServer(t)
	biz := s.signup("tacoshop", true)
	key := decode(t, s.do(http.MethodGet, "/api/v1/referral-requests", biz, nil, ""))["api_key"].(string)

	huge := `{"api_key":"` + key + `","emails":"` + strings.Repeat("a", maxJSONBytes) + `@example.com"}`
	rec := s.do(http.MethodPost, "/api/referral-request", "", strings.NewReader(huge), "application/json")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, s.mail.msgs)

	rec = s.json(http.MethodPost, "/api/referral-request", "", map[string]interface{}{"api_key": key, "emails": "a@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["rate_limit_remaining"], "rejected body does not use quota")
}

func TestNewsletter(t *testing.T) {
	s := newTestServer(t)
	biz := s.signup("tacoshop", true)

	rec := s.json(http.MethodPost, "/api/v1/newsletter", biz, map[string]string{
		"content": "Big news", "recipients": "a@example.com, b@example.com,",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["sent"])
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, s.mail.newsletter)

	rec = s.json(http.MethodPost, "/api/v1/newsletter", biz, map[string]string{"content": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.json(http.MethodPost, "/api/v1/newsletter/generate", biz, map[string]string{
		"topic": "Summer menu", "tone": "excited", "business_name": "Taco Shop",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	draft := decode(t, rec)
	assert.Equal(t, "template", draft["source"])
	assert.Contains(t, draft["content"], "Summer menu")
	assert.Contains(t, draft["content"], "Taco Shop")
}

// ============================================================================
// INFRA
// ============================================================================

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/health", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	h := HandleHealth(map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("down") },
	})
	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["status"])
}

func TestMediaRedirect(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/media/stories/clip.mp4", "", nil, "")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/media/files/video/upload/stories/clip.mp4", rec.Header().Get("Location"))

	rec = s.do(http.MethodGet, "/media/files/image/upload/stories/missing.png", "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMediaRedirect_CloudNameServesLocalFile(t *testing.T) {
	s := newTestServerWithCloud(t, "arecko")
	name, err := s.media.Save(context.Background(), "stories/a.jpg", strings.NewReader("jpg"), 3, "image/jpeg")
	require.NoError(t, err)

	rec := s.do(http.MethodGet, "/media/"+name, "", nil, "")
	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	assert.Equal(t, "/media/files/image/upload/"+name, loc)

	rec = s.do(http.MethodGet, loc, "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpg", rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/reckos", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, statusFor(fmt.Errorf("wrap: %w", solicit.ErrRateLimited)))
	assert.Equal(t, http.StatusForbidden, statusFor(referrals.ErrBusinessCannotPost))
	assert.Equal(t, http.StatusNotFound, statusFor(database.ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
