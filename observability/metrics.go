// Package observability exposes the relay counters and gauges to Prometheus.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates every relay metric. A nil *Metrics is valid and records nothing,
// which keeps components usable without a registry in tests.
type Metrics struct {
	SessionsAccepted  prometheus.Counter
	SessionsRejected  *prometheus.CounterVec
	LiveConnections   prometheus.Gauge
	ReplayedMessages  prometheus.Counter
	RelayedMessages   prometheus.Counter
	StoreFailures     prometheus.Counter
	BroadcastDropped  prometheus.Counter
	IndexSucceeded    prometheus.Counter
	IndexFailed       prometheus.Counter
	IndexDropped      prometheus.Counter
	RelayDuration     prometheus.Observer
	ProcessCPUPercent prometheus.Gauge
	ProcessMemPercent prometheus.Gauge
	ProcessThreads    prometheus.Gauge
	ChannelLength     *prometheus.GaugeVec
	ChannelCapacity   *prometheus.GaugeVec
	WorkerRestarts    *prometheus.CounterVec
}

// NewMetrics registers the relay metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsAccepted: factory.NewCounter(prometheus.CounterOpts{Name: "relay_sessions_accepted_total", Help: "Number of sessions that reached the live state"}),
		SessionsRejected: factory.NewCounterVec(prometheus.CounterOpts{Name: "relay_sessions_rejected_total", Help: "Number of connections rejected during establishment"}, []string{"reason"}),
		LiveConnections:  factory.NewGauge(prometheus.GaugeOpts{Name: "relay_live_connections", Help: "Current number of joined connections"}),
		ReplayedMessages: factory.NewCounter(prometheus.CounterOpts{Name: "relay_replayed_messages_total", Help: "Number of history messages delivered to connecting clients"}),
		RelayedMessages:  factory.NewCounter(prometheus.CounterOpts{Name: "relay_messages_total", Help: "Number of live messages persisted and broadcast"}),
		StoreFailures:    factory.NewCounter(prometheus.CounterOpts{Name: "relay_store_failures_total", Help: "Number of live messages that could not be persisted"}),
		BroadcastDropped: factory.NewCounter(prometheus.CounterOpts{Name: "relay_broadcast_dropped_total", Help: "Number of payloads a member sink could not accept in time"}),
		IndexSucceeded:   factory.NewCounter(prometheus.CounterOpts{Name: "relay_index_succeeded_total", Help: "Number of messages indexed"}),
		IndexFailed:      factory.NewCounter(prometheus.CounterOpts{Name: "relay_index_failed_total", Help: "Number of messages the index sink refused"}),
		IndexDropped:     factory.NewCounter(prometheus.CounterOpts{Name: "relay_index_dropped_total", Help: "Number of index jobs dropped because the queue was full"}),
		RelayDuration:    factory.NewHistogram(prometheus.HistogramOpts{Name: "relay_message_duration_seconds", Help: "Persist and broadcast duration seconds", Buckets: prometheus.DefBuckets}),
		ProcessCPUPercent: factory.NewGauge(prometheus.GaugeOpts{Name: "relay_process_cpu_percent", Help: "CPU usage of the relay process"}),
		ProcessMemPercent: factory.NewGauge(prometheus.GaugeOpts{Name: "relay_process_memory_percent", Help: "Memory usage of the relay process"}),
		ProcessThreads:    factory.NewGauge(prometheus.GaugeOpts{Name: "relay_process_threads", Help: "Number of OS threads of the relay process"}),
		ChannelLength:     factory.NewGaugeVec(prometheus.GaugeOpts{Name: "relay_channel_length", Help: "Buffered items of an internal channel"}, []string{"name"}),
		ChannelCapacity:   factory.NewGaugeVec(prometheus.GaugeOpts{Name: "relay_channel_capacity", Help: "Capacity of an internal channel"}, []string{"name"}),
		WorkerRestarts:    factory.NewCounterVec(prometheus.CounterOpts{Name: "relay_worker_restarts_total", Help: "Number of background worker restarts after a failure"}, []string{"worker"}),
	}
}

func (m *Metrics) SessionAccepted() {
	if m != nil {
		m.SessionsAccepted.Inc()
		m.LiveConnections.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.LiveConnections.Dec()
	}
}

func (m *Metrics) SessionRejected(reason string) {
	if m != nil {
		m.SessionsRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) MessageReplayed() {
	if m != nil {
		m.ReplayedMessages.Inc()
	}
}

func (m *Metrics) MessageRelayed(seconds float64) {
	if m != nil {
		m.RelayedMessages.Inc()
		m.RelayDuration.Observe(seconds)
	}
}

func (m *Metrics) StoreFailed() {
	if m != nil {
		m.StoreFailures.Inc()
	}
}

func (m *Metrics) BroadcastDrop() {
	if m != nil {
		m.BroadcastDropped.Inc()
	}
}

// Indexed records the outcome reported by the index sink.
func (m *Metrics) Indexed(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.IndexSucceeded.Inc()
		return
	}
	m.IndexFailed.Inc()
}

func (m *Metrics) IndexDrop() {
	if m != nil {
		m.IndexDropped.Inc()
	}
}

func (m *Metrics) Process(cpu float64, mem float32, threads int32) {
	if m != nil {
		m.ProcessCPUPercent.Set(cpu)
		m.ProcessMemPercent.Set(float64(mem))
		m.ProcessThreads.Set(float64(threads))
	}
}

func (m *Metrics) Channel(name string, capacity, length int) {
	if m != nil {
		m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
		m.ChannelLength.WithLabelValues(name).Set(float64(length))
	}
}

func (m *Metrics) WorkerRestarted(worker string) {
	if m != nil {
		m.WorkerRestarts.WithLabelValues(worker).Inc()
	}
}
