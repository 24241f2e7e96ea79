package handlers

import (
	"io"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/arecko/backend/internal/accounts"
	"github.com/arecko/backend/internal/events"
	"github.com/arecko/backend/internal/media"
	"github.com/arecko/backend/internal/middleware"
	"github.com/arecko/backend/internal/referrals"
	"github.com/arecko/backend/internal/solicit"
)

// Deps are the services behind the API. Metrics, Feed, Bus, MediaStore and
// Limiter are optional.
type Deps struct {
	Accounts    *accounts.Service
	Referrals   *referrals.Service
	Solicitor   *solicit.Solicitor
	Newsletters NewsletterSender
	Drafter     Drafter
	Resolver    *media.Resolver
	MediaStore  media.Store
	Bus         *events.Bus
	Feed        http.HandlerFunc
	Metrics     http.Handler
	Health      map[string]HealthCheck
	Limiter     *middleware.RateLimiter

	CORSOrigins    []string
	MaxUploadBytes int64
	DailyLimit     int
	AccessLog      io.Writer
}

// NewRouter builds the API handler.
func NewRouter(d Deps) http.Handler {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 100 << 20
	}
	if d.AccessLog == nil {
		d.AccessLog = os.Stdout
	}
	limit := func(h http.HandlerFunc) http.HandlerFunc {
		if d.Limiter == nil {
			return h
		}
		return d.Limiter.Limit(h)
	}
	user := middleware.RequireUser
	business := middleware.RequireBusiness

	router := mux.NewRouter()
	router.HandleFunc("/health", HandleHealth(d.Health)).Methods("GET")
	if d.Metrics != nil {
		router.Handle("/metrics", d.Metrics).Methods("GET")
	}
	if d.Feed != nil {
		router.HandleFunc("/ws/feed", d.Feed)
	}
	if d.MediaStore != nil {
		router.HandleFunc("/media/files/{type}/upload/{name:.*}", HandleMediaFile(d.MediaStore)).Methods("GET")
	}
	router.HandleFunc("/media/{name:.*}", HandleMediaRedirect(d.Resolver)).Methods("GET")
	router.HandleFunc("/api/referral-request", limit(HandleAPIReferralRequest(d.Solicitor, d.DailyLimit))).Methods("POST")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Authenticate(d.Accounts))

	api.HandleFunc("/signup", limit(HandleSignup(d.Accounts, false))).Methods("POST")
	api.HandleFunc("/signup/business", limit(HandleSignup(d.Accounts, true))).Methods("POST")
	api.HandleFunc("/login", limit(HandleLogin(d.Accounts))).Methods("POST")
	api.HandleFunc("/profile", user(HandleUpdateProfile(d.Accounts, d.MaxUploadBytes))).Methods("PUT")
	api.HandleFunc("/account", user(HandleDeleteAccount(d.Accounts))).Methods("DELETE")

	api.HandleFunc("/reckos", HandleFeed(d.Referrals)).Methods("GET")
	api.HandleFunc("/reckos", HandlePostRecko(d.Referrals, d.MaxUploadBytes)).Methods("POST")
	api.HandleFunc("/reckos/{id:[0-9]+}", HandleGetRecko(d.Referrals)).Methods("GET")
	api.HandleFunc("/reckos/{id:[0-9]+}", user(HandleDeleteRecko(d.Referrals))).Methods("DELETE")
	api.HandleFunc("/reckos/{id:[0-9]+}/reactions", user(HandleToggleReaction(d.Referrals))).Methods("POST")
	api.HandleFunc("/reckos/{id:[0-9]+}/comments", user(HandleAddComment(d.Referrals))).Methods("POST")
	api.HandleFunc("/reckos/{id:[0-9]+}/verify", business(HandleVerify(d.Referrals))).Methods("POST")
	api.HandleFunc("/business/dashboard", business(HandleDashboard(d.Referrals))).Methods("GET")
	api.HandleFunc("/users/{username}", HandleUserProfile(d.Referrals)).Methods("GET")

	api.HandleFunc("/referral-requests", user(HandleReferralRequests(d.Solicitor))).Methods("GET")
	api.HandleFunc("/referral-requests", user(HandleSendReferralRequests(d.Solicitor, d.MaxUploadBytes))).Methods("POST")
	api.HandleFunc("/newsletter", user(HandleSendNewsletter(d.Newsletters))).Methods("POST")
	api.HandleFunc("/newsletter/generate", user(HandleGenerateNewsletter(d.Drafter))).Methods("POST")
	if d.Bus != nil {
		api.HandleFunc("/events/stream", HandleEventStream(d.Bus)).Methods("GET")
	}

	var h http.Handler = router
	h = middleware.CORS(d.CORSOrigins)(h)
	h = middleware.Logging(d.AccessLog)(h)
	return middleware.Recovery(h)
}
