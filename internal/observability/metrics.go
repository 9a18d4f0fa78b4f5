package observability

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-presence/internal/platform/envutil"
)

// Metrics holds the agent's process-local counters. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	apiRequests  *CounterVec
	apiLatency   *HistogramVec
	apiInflight  *Gauge
	updates      *CounterVec
	events       *CounterVec
	sessionState *GaugeVec
	streams      *Gauge
}

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", true)
}

func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("presence_local_api_requests_total", "Local UI API requests.", []string{"method", "route", "status"}),
		apiLatency:  NewHistogramVec("presence_local_api_request_seconds", "Local UI API latency.", []string{"method", "route"}, nil),
		apiInflight: NewGauge("presence_local_api_inflight", "Local UI API requests in flight."),
		updates:     NewCounterVec("presence_updates_total", "Read model changes emitted by the engine.", []string{"kind"}),
		events:      NewCounterVec("presence_events_total", "Server events routed by the engine.", []string{"type"}),
		sessionState: NewGaugeVec("presence_session_state", "1 for the current session state.",
			[]string{"state"}),
		streams: NewGauge("presence_event_streams", "Local /api/events subscribers."),
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight, m.updates, m.events, m.sessionState, m.streams,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.Inc(method, route, strconv.Itoa(status))
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) APIInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

// ObserveUpdate counts one engine update; eventType is set for routed events.
func (m *Metrics) ObserveUpdate(kind, eventType string) {
	if m == nil {
		return
	}
	m.updates.Inc(kind)
	if strings.TrimSpace(eventType) != "" {
		m.events.Inc(eventType)
	}
}

// SetSessionState marks exactly one of the known states as current.
func (m *Metrics) SetSessionState(state string) {
	if m == nil {
		return
	}
	for _, s := range []string{"online", "offline", "idle", "starting", "stopped"} {
		v := 0.0
		if s == state {
			v = 1
		}
		m.sessionState.Set(v, s)
	}
}

func (m *Metrics) StreamOpened() {
	if m != nil {
		m.streams.Inc()
	}
}

func (m *Metrics) StreamClosed() {
	if m != nil {
		m.streams.Dec()
	}
}
