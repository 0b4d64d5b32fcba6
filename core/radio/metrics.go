package radio

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics
var (
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "onair_transitions_total", Help: "Track transitions by reason"},
		[]string{"reason"},
	)
	tracksStarted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "onair_tracks_started_total", Help: "Tracks put on air"},
	)
	bookkeepingFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "onair_bookkeeping_failures_total", Help: "Failed play count writes"},
	)
	subscribersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "onair_subscribers", Help: "Active broadcast subscribers"},
	)
	droppedUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "onair_dropped_updates_total", Help: "Status updates dropped for slow subscribers"},
	)
	stateGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "onair_scheduler_state", Help: "0 idle, 1 playing, 2 paused"},
	)

	registerOnce sync.Once
)

// 切换原因
const (
	reasonTimer   = "timer"
	reasonSkip    = "skip"
	reasonRemoved = "removed"
	reasonStart   = "start"
)

// RegisterMetrics registers the radio collectors with the default registry.
// Safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(transitionsTotal, tracksStarted, bookkeepingFailures,
			subscribersGauge, droppedUpdates, stateGauge)
	})
}
