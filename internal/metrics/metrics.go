package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the referral service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Recko metrics
	ReckosPosted      *prometheus.CounterVec
	ReferralsVerified prometheus.Counter
	TiersReached      *prometheus.CounterVec
	Reactions         *prometheus.CounterVec

	// Outbound mail
	EmailsSent *prometheus.CounterVec

	// Media
	MediaUploads     *prometheus.CounterVec
	VideoProcessing  *prometheus.HistogramVec
	NewsletterDrafts *prometheus.CounterVec

	// API quota
	QuotaRejections prometheus.Counter
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ReckosPosted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arecko_reckos_posted_total",
				Help: "Total number of Reckos posted",
			},
			[]string{"industry", "media"}, // media: none, image, video
		),

		ReferralsVerified: f.NewCounter(
			prometheus.CounterOpts{
				Name: "arecko_referrals_verified_total",
				Help: "Total number of referrals verified by businesses",
			},
		),

		TiersReached: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arecko_tiers_reached_total",
				Help: "Verifications that left the poster at a given tier for the business",
			},
			[]string{"tier"},
		),

		Reactions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arecko_reactions_total",
				Help: "Reaction toggles by outcome",
			},
			[]string{"type", "outcome"}, // outcome: added, changed, removed
		),

		EmailsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arecko_emails_sent_total",
				Help: "Outbound emails by kind and result",
			},
			[]string{"kind", "result"}, // result: sent, failed, dropped
		),

		MediaUploads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arecko_media_uploads_total",
				Help: "Stored media uploads by resource type",
			},
			[]string{"resource_type"},
		),

		VideoProcessing: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arecko_video_processing_seconds",
				Help:    "Duration of video transcoding",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"result"}, // result: compressed, original
		),

		NewsletterDrafts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arecko_newsletter_drafts_total",
				Help: "Generated newsletter drafts by source",
			},
			[]string{"source"}, // source: ai, template
		),

		QuotaRejections: f.NewCounter(
			prometheus.CounterOpts{
				Name: "arecko_api_quota_rejections_total",
				Help: "API referral requests rejected by the daily quota",
			},
		),
	}
}

// RecordRecko records a new post
func (m *Metrics) RecordRecko(industry, media string) {
	if m == nil {
		return
	}
	if media == "" {
		media = "none"
	}
	m.ReckosPosted.WithLabelValues(industry, media).Inc()
}

// RecordVerification records a verification and the tier it produced
func (m *Metrics) RecordVerification(tier string) {
	if m == nil {
		return
	}
	m.ReferralsVerified.Inc()
	m.TiersReached.WithLabelValues(tier).Inc()
}

// RecordReaction records a reaction toggle
func (m *Metrics) RecordReaction(reactionType, outcome string) {
	if m == nil {
		return
	}
	m.Reactions.WithLabelValues(reactionType, outcome).Inc()
}

// RecordEmail records an outbound email attempt
func (m *Metrics) RecordEmail(kind, result string) {
	if m == nil {
		return
	}
	m.EmailsSent.WithLabelValues(kind, result).Inc()
}

// RecordUpload records a stored upload
func (m *Metrics) RecordUpload(resourceType string) {
	if m == nil {
		return
	}
	m.MediaUploads.WithLabelValues(resourceType).Inc()
}

// RecordVideoProcessing records how long transcoding took
func (m *Metrics) RecordVideoProcessing(compressed bool, seconds float64) {
	if m == nil {
		return
	}
	result := "original"
	if compressed {
		result = "compressed"
	}
	m.VideoProcessing.WithLabelValues(result).Observe(seconds)
}

// RecordNewsletterDraft records where a newsletter draft came from
func (m *Metrics) RecordNewsletterDraft(source string) {
	if m == nil {
		return
	}
	m.NewsletterDrafts.WithLabelValues(source).Inc()
}

// RecordQuotaRejection records an API call refused by the daily quota
func (m *Metrics) RecordQuotaRejection() {
	if m == nil {
		return
	}
	m.QuotaRejections.Inc()
}
