// Package metrics exposes Prometheus counters for the acquisition
// subsystem. A nil *Metrics is a valid no-op receiver so library code can
// instrument unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the subsystem's counters.
type Metrics struct {
	fetchTotal   *prometheus.CounterVec
	fetchBlocked *prometheus.CounterVec
	fetchBytes   prometheus.Counter
	searchTotal  *prometheus.CounterVec
}

// New registers the counters on reg and returns the bundle. A nil registerer
// leaves the counters unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webgate_fetch_total",
			Help: "Fetch operations by outcome.",
		}, []string{"outcome"}),
		fetchBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webgate_fetch_blocked_total",
			Help: "Fetch operations rejected before or during transfer, by reason.",
		}, []string{"reason"}),
		fetchBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webgate_fetch_bytes_total",
			Help: "Body bytes successfully fetched.",
		}),
		searchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webgate_search_total",
			Help: "Search operations by result (hit, miss, denied, error).",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.fetchTotal, m.fetchBlocked, m.fetchBytes, m.searchTotal)
	}
	return m
}

// FetchOutcome counts one completed fetch attempt.
func (m *Metrics) FetchOutcome(outcome string) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(outcome).Inc()
}

// FetchBlocked counts one rejected fetch with its policy reason.
func (m *Metrics) FetchBlocked(reason string) {
	if m == nil {
		return
	}
	m.fetchBlocked.WithLabelValues(reason).Inc()
}

// FetchBytes accumulates successfully transferred body bytes.
func (m *Metrics) FetchBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.fetchBytes.Add(float64(n))
}

// SearchResult counts one search call by how it was served.
func (m *Metrics) SearchResult(result string) {
	if m == nil {
		return
	}
	m.searchTotal.WithLabelValues(result).Inc()
}
