package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	eventsAppliedCounter      prometheus.Counter
	eventsRejectedCounter     prometheus.Counter
	resolutionTicksCounter    prometheus.Counter
	persistenceFailureCounter prometheus.Counter
	snapshotsRecordedCounter  prometheus.Counter
	snapshotFailureCounter    prometheus.Counter
	modifiersPushedCounter    prometheus.Counter
	modifiersRejectedCounter  prometheus.Counter
	activeEnginesGauge        prometheus.Gauge
}

func (m *metrics) EventApplied() {
	m.eventsAppliedCounter.Inc()
}

func (m *metrics) EventRejected() {
	m.eventsRejectedCounter.Inc()
}

func (m *metrics) ResolutionTick() {
	m.resolutionTicksCounter.Inc()
}

func (m *metrics) PersistenceFailed() {
	m.persistenceFailureCounter.Inc()
}

func (m *metrics) SnapshotRecorded() {
	m.snapshotsRecordedCounter.Inc()
}

func (m *metrics) SnapshotFailed() {
	m.snapshotFailureCounter.Inc()
}

func (m *metrics) ModifierPushed() {
	m.modifiersPushedCounter.Inc()
}

func (m *metrics) ModifierRejected() {
	m.modifiersRejectedCounter.Inc()
}

func (m *metrics) SetActiveEngines(count int) {
	m.activeEnginesGauge.Set(float64(count))
}

var Metrics = &metrics{
	eventsAppliedCounter: promauto.NewCounter(prometheus.CounterOpts{
		Name: "pressure_events_applied_total",
		Help: "Total number of pressure events applied to a personality",
	}),
	eventsRejectedCounter: promauto.NewCounter(prometheus.CounterOpts{
		Name: "pressure_events_rejected_total",
		Help: "Total number of pressure events rejected as invalid",
	}),
	resolutionTicksCounter: promauto.NewCounter(prometheus.CounterOpts{
		Name: "resolution_ticks_total",
		Help: "Total number of per-player resolution ticks",
	}),
	persistenceFailureCounter: promauto.NewCounter(prometheus.CounterOpts{
		Name: "personality_persistence_failures_total",
		Help: "Total number of failed personality state loads or flushes",
	}),
	snapshotsRecordedCounter: promauto.NewCounter(prometheus.CounterOpts{
		Name: "personality_snapshots_recorded_total",
		Help: "Total number of personality snapshots recorded",
	}),
	snapshotFailureCounter: promauto.NewCounter(prometheus.CounterOpts{
		Name: "personality_snapshot_failures_total",
		Help: "Total number of personality snapshots that could not be stored",
	}),
	modifiersPushedCounter: promauto.NewCounter(prometheus.CounterOpts{
		Name: "trait_modifiers_pushed_total",
		Help: "Total number of trait modifiers pushed",
	}),
	modifiersRejectedCounter: promauto.NewCounter(prometheus.CounterOpts{
		Name: "trait_modifiers_rejected_total",
		Help: "Total number of trait modifiers rejected (invalid or stack full)",
	}),
	activeEnginesGauge: promauto.NewGauge(prometheus.GaugeOpts{
		Name: "active_personality_engines",
		Help: "Count of the games with a live personality engine",
	}),
}
