// Package observability holds the prometheus instrumentation shared by the
// session controller and the video fan-out.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SessionsStarted prometheus.Counter
	SessionFailures prometheus.Counter
	FramesRelayed   prometheus.Counter
	InjectionErrors prometheus.Counter
	ActiveSessions  prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "droidview_sessions_started_total",
			Help: "Device sessions that entered the startup sequence.",
		}),
		SessionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "droidview_session_failures_total",
			Help: "Device sessions that ended in a startup or stream failure.",
		}),
		FramesRelayed: f.NewCounter(prometheus.CounterOpts{
			Name: "droidview_frames_relayed_total",
			Help: "Mirror stream records forwarded to browser sinks.",
		}),
		InjectionErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "droidview_injection_errors_total",
			Help: "Input events that failed to deliver to the device.",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "droidview_active_sessions",
			Help: "Device sessions currently past Idle.",
		}),
	}
}
