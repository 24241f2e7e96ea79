package handlers

import (
	"net/http"

	"github.com/arecko/backend/internal/accounts"
	"github.com/arecko/backend/internal/middleware"
)

// HandleSignup creates a personal or business account and logs it in.
func HandleSignup(svc *accounts.Service, business bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in accounts.SignupInput
		if err := decodeJSON(w, r, &in); err != nil {
			fail(w, r, err)
			return
		}
		password := in.Password1

		signup := svc.Signup
		if business {
			signup = svc.BusinessSignup
		}
		u, err := signup(r.Context(), in)
		if err != nil {
			fail(w, r, err)
			return
		}

		session, err := svc.Login(r.Context(), u.Username, password)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, session)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin issues a bearer token.
func HandleLogin(svc *accounts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}
		session, err := svc.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// HandleUpdateProfile applies a multipart profile form with an optional
// "profile_picture" file.
func HandleUpdateProfile(svc *accounts.Service, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := parseForm(w, r, maxBytes); err != nil {
			fail(w, r, err)
			return
		}
		picture, f, err := formFile(r, "profile_picture")
		if err != nil {
			fail(w, r, err)
			return
		}
		if f != nil {
			defer f.Close()
		}

		actor := middleware.UserFrom(r.Context())
		u, profile, err := svc.UpdateProfile(r.Context(), actor.ID, accounts.ProfileInput{
			DisplayName: r.FormValue("display_name"),
			Email:       r.FormValue("email"),
			Bio:         r.FormValue("bio"),
			Location:    r.FormValue("location"),
			Website:     r.FormValue("website"),
			Picture:     picture,
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"user":    u,
			"profile": profile,
		})
	}
}

// HandleDeleteAccount removes the caller's account and Reckos.
func HandleDeleteAccount(svc *accounts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := middleware.UserFrom(r.Context())
		if err := svc.DeleteAccount(r.Context(), actor.ID); err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}
