// Package handlers exposes the JSON HTTP API.
package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/arecko/backend/internal/accounts"
	"github.com/arecko/backend/internal/database"
	"github.com/arecko/backend/internal/media"
	"github.com/arecko/backend/internal/referrals"
	"github.com/arecko/backend/internal/solicit"
)

var logger = log.New(log.Writer(), "[API] ", log.LstdFlags)

// maxJSONBytes caps JSON request bodies.
const maxJSONBytes = 1 << 20

var (
	errBadRequest   = errors.New("invalid request body")
	errBodyTooLarge = errors.New("request body too large")
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Printf("⚠️ Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": msg})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, accounts.ErrMissingFields),
		errors.Is(err, accounts.ErrPasswordMismatch),
		errors.Is(err, accounts.ErrPasswordTooShort),
		errors.Is(err, accounts.ErrUsernameTaken),
		errors.Is(err, accounts.ErrInvalidEmail),
		errors.Is(err, referrals.ErrMissingFields),
		errors.Is(err, referrals.ErrEmptyComment),
		errors.Is(err, solicit.ErrInvalidEmail),
		errors.Is(err, solicit.ErrNoEmails),
		errors.Is(err, media.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, accounts.ErrInvalidCredentials),
		errors.Is(err, accounts.ErrInvalidToken),
		errors.Is(err, accounts.ErrTokenExpired),
		errors.Is(err, solicit.ErrMissingAPIKey),
		errors.Is(err, solicit.ErrInvalidAPIKey):
		return http.StatusUnauthorized
	case errors.Is(err, referrals.ErrForbidden),
		errors.Is(err, referrals.ErrBusinessCannotPost):
		return http.StatusForbidden
	case errors.Is(err, referrals.ErrNotFound),
		errors.Is(err, referrals.ErrUserNotFound),
		errors.Is(err, database.ErrNotFound),
		errors.Is(err, media.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, solicit.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Internal errors are logged and
// not echoed to the client.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Printf("❌ %s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// decodeJSON reads at most maxJSONBytes of r's body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return errBadRequest
	}
	return nil
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}
