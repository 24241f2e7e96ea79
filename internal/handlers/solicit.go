package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/arecko/backend/internal/middleware"
	"github.com/arecko/backend/internal/solicit"
)

// HandleReferralRequests returns the business's API key and request history.
func HandleReferralRequests(sol *solicit.Solicitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := middleware.UserFrom(r.Context())
		key, err := sol.EnsureAPIKey(r.Context(), actor.ID)
		if err != nil {
			fail(w, r, err)
			return
		}
		history, err := sol.History(r.Context(), actor.ID)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"api_key":           key.Key,
			"referral_requests": history,
		})
	}
}

// HandleSendReferralRequests handles the referral request form. The "mode"
// field selects single, bulk or generate_api_key.
func HandleSendReferralRequests(sol *solicit.Solicitor, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := parseForm(w, r, maxBytes); err != nil {
			fail(w, r, err)
			return
		}
		actor := middleware.UserFrom(r.Context())

		switch mode := r.FormValue("mode"); mode {
		case "generate_api_key":
			key, err := sol.RegenerateAPIKey(r.Context(), actor.ID)
			if err != nil {
				fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"api_key": key.Key,
				"message": "New API key generated!",
			})

		case "bulk":
			csvFile, f, err := formFile(r, "csv_file")
			if err != nil {
				fail(w, r, err)
				return
			}
			if f != nil {
				defer f.Close()
			}
			var csvBody io.Reader
			if csvFile != nil {
				csvBody = csvFile.Body
			}
			res, err := sol.SendBulk(r.Context(), actor, r.FormValue("bulk_emails"), csvBody, r.FormValue("bulk_message"))
			if err != nil {
				if errors.Is(err, solicit.ErrNoEmails) && res != nil && res.CSVError != "" {
					writeError(w, http.StatusBadRequest, "Error reading CSV: "+res.CSVError)
					return
				}
				fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success":   true,
				"sent":      res.Sent,
				"total":     res.Total,
				"csv_error": res.CSVError,
				"message":   fmt.Sprintf("Sent %d Arecko-mendation requests!", res.Sent),
			})

		case "", "single":
			email := r.FormValue("customer_email")
			if err := sol.SendSingle(r.Context(), actor, email, r.FormValue("personal_message")); err != nil {
				fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"sent":    1,
				"message": fmt.Sprintf("Arecko-mendation request sent to %s!", email),
			})

		default:
			writeError(w, http.StatusBadRequest, "unknown mode "+mode)
		}
	}
}

// emailList accepts a single address or a list of addresses.
type emailList []string

func (l *emailList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one == "" {
			*l = nil
		} else {
			*l = emailList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

type apiReferralRequest struct {
	APIKey  string    `json:"api_key"`
	Emails  emailList `json:"emails"`
	Message string    `json:"message"`
}

// HandleAPIReferralRequest is the CRM endpoint, authenticated by the API key
// in the body.
func HandleAPIReferralRequest(sol *solicit.Solicitor, dailyLimit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req apiReferralRequest
		if err := decodeJSON(w, r, &req); err != nil {
			if errors.Is(err, errBodyTooLarge) {
				fail(w, r, err)
				return
			}
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}

		res, err := sol.SendAPI(r.Context(), req.APIKey, req.Emails, req.Message)
		switch {
		case errors.Is(err, solicit.ErrRateLimited):
			writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"success":              false,
				"error":                fmt.Sprintf("Rate limit exceeded. Maximum %d requests per day.", dailyLimit),
				"retry_after":          "tomorrow",
				"rate_limit_remaining": 0,
			})
		case errors.Is(err, solicit.ErrNoEmails):
			writeError(w, http.StatusBadRequest, "No emails provided")
		case err != nil:
			fail(w, r, err)
		default:
			writeJSON(w, http.StatusOK, res)
		}
	}
}
