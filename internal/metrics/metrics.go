package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stream metrics
var (
	// EventsTotal tracks stream events consumed by type
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_events_total",
			Help: "Stream events consumed by event type",
		},
		[]string{"type"},
	)

	// MalformedEventsTotal tracks feed frames dropped as undecodable
	MalformedEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_malformed_events_total",
			Help: "Feed frames dropped because they could not be decoded",
		},
	)
)

// Session metrics
var (
	// SessionsActive tracks the number of live identity sessions
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "identity_sessions_active",
			Help: "Number of identity sessions currently registered",
		},
	)

	// RelaysTotal tracks relay attempts by outcome (relayed, rate_limited, error)
	RelaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relays_total",
			Help: "Relay attempts by outcome",
		},
		[]string{"outcome"},
	)

	// UnfollowsTotal tracks session teardowns by reason
	UnfollowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unfollows_total",
			Help: "Unfollow transitions by reason",
		},
		[]string{"reason"},
	)
)

// Captcha metrics
var (
	CaptchasIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "captchas_issued_total",
			Help: "Captcha challenges issued",
		},
	)

	CaptchasSolvedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "captchas_solved_total",
			Help: "Captcha challenges solved",
		},
	)

	CaptchaServiceErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "captcha_service_errors_total",
			Help: "Failed fetches from the captcha service",
		},
	)
)

// Platform call metrics
var (
	// PlatformCallsTotal tracks outbound platform API calls by operation and status
	PlatformCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_calls_total",
			Help: "Outbound platform API calls by operation and status",
		},
		[]string{"operation", "status"},
	)

	// ScheduledDeletionsTotal tracks deferred message deletions by status
	ScheduledDeletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduled_deletions_total",
			Help: "Deferred direct message deletions by status",
		},
		[]string{"status"},
	)

	// ModerationDeletesTotal tracks force-deletes triggered by the moderation identity
	ModerationDeletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_deletes_total",
			Help: "Messages and posts force-deleted by the moderation filter",
		},
		[]string{"kind"},
	)
)
