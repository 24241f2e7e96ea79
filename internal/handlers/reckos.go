package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/arecko/backend/internal/middleware"
	"github.com/arecko/backend/internal/referrals"
)

// HandleFeed returns a page of Reckos. Bad or out-of-range pages clamp.
func HandleFeed(svc *referrals.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		p, err := svc.Feed(r.Context(), page)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// HandlePostRecko accepts a multipart Recko with an optional "media" file.
// Anonymous posts are allowed.
func HandlePostRecko(svc *referrals.Service, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := parseForm(w, r, maxBytes); err != nil {
			fail(w, r, err)
			return
		}
		file, f, err := formFile(r, "media")
		if err != nil {
			fail(w, r, err)
			return
		}
		if f != nil {
			defer f.Close()
		}

		v, err := svc.Post(r.Context(), middleware.UserFrom(r.Context()), referrals.PostInput{
			BusinessName: r.FormValue("business_name"),
			Industry:     r.FormValue("industry"),
			Body:         r.FormValue("story"),
			ContactInfo:  r.FormValue("contact_info"),
			GuestName:    r.FormValue("guest_name"),
			Media:        file,
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}

// HandleGetRecko returns one Recko with comments and reactions.
func HandleGetRecko(svc *referrals.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			fail(w, r, referrals.ErrNotFound)
			return
		}
		d, err := svc.Get(r.Context(), middleware.UserFrom(r.Context()), id)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// HandleDeleteRecko deletes a Recko the caller may moderate.
func HandleDeleteRecko(svc *referrals.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			fail(w, r, referrals.ErrNotFound)
			return
		}
		if err := svc.Delete(r.Context(), middleware.UserFrom(r.Context()), id); err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

// HandleToggleReaction toggles the ?type= reaction.
func HandleToggleReaction(svc *referrals.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			fail(w, r, referrals.ErrNotFound)
			return
		}
		sum, err := svc.ToggleReaction(r.Context(), middleware.UserFrom(r.Context()), id, r.URL.Query().Get("type"))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

type commentRequest struct {
	Text string `json:"text"`
}

// HandleAddComment appends a comment.
func HandleAddComment(svc *referrals.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			fail(w, r, referrals.ErrNotFound)
			return
		}
		var req commentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}
		c, err := svc.AddComment(r.Context(), middleware.UserFrom(r.Context()), id, req.Text)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

// HandleVerify lets a business verify a Recko.
func HandleVerify(svc *referrals.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			fail(w, r, referrals.ErrNotFound)
			return
		}
		res, err := svc.Verify(r.Context(), middleware.UserFrom(r.Context()), id)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HandleDashboard lists the business's pending and verified Reckos.
func HandleDashboard(svc *referrals.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := svc.Dashboard(r.Context(), middleware.UserFrom(r.Context()))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// HandleUserProfile returns a public profile with reputation badges.
func HandleUserProfile(svc *referrals.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.UserProfile(r.Context(), mux.Vars(r)["username"])
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
