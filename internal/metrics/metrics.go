// Package metrics exports engine activity as Prometheus collectors. A
// Metrics value plugs into every component that accepts an observer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aretw0/hetcore/internal/coherency"
	"github.com/aretw0/hetcore/internal/dispatch"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hetcore"

// Metrics holds the engine's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	translations *prometheus.CounterVec
	mapFailures  *prometheus.CounterVec
	unwinds      *prometheus.CounterVec
	cacheOps     *prometheus.CounterVec
	cacheBytes   *prometheus.CounterVec
	rpcCalls     *prometheus.CounterVec
	rpcBytes     *prometheus.CounterVec
	rpcDuration  *prometheus.HistogramVec
	dispatched   *prometheus.CounterVec
	dispatchTime *prometheus.HistogramVec
	coreState    *prometheus.GaugeVec
	sections     prometheus.Histogram
	sectionNodes *prometheus.CounterVec
	graphs       prometheus.Histogram
}

// New creates and registers every collector. Go runtime and process
// collectors are included when runtime is set.
func New(runtime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		translations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translations_total",
			Help:      "Address translations by core, memory class and cache result.",
		}, []string{"core", "class", "result"}),
		mapFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "map_failures_total",
			Help:      "Mapping primitive failures by core and memory class.",
		}, []string{"core", "class"}),
		unwinds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_unwinds_total",
			Help:      "Fan-out translations rolled back after a failure.",
		}, []string{"class"}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_ops_total",
			Help:      "Cache maintenance operations by kind and memory class.",
		}, []string{"op", "class"}),
		cacheBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_op_bytes_total",
			Help:      "Bytes flushed or invalidated.",
		}, []string{"op"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "Remote calls by core, function and status.",
		}, []string{"core", "fn", "status"}),
		rpcBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_bytes_total",
			Help:      "Marshaled parameter bytes by direction.",
		}, []string{"core", "direction"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "Remote call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"core", "fn"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatched_nodes_total",
			Help:      "Nodes executed per core, labelled by whether the dispatch failed.",
		}, []string{"core", "failed"}),
		dispatchTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time to run one sub-graph on a core.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"core"}),
		coreState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "core_state",
			Help:      "Current execution state of each core manager (0 idle, 1 executing, 2 returning, 3 failed, 4 stopped).",
		}, []string{"core"}),
		sections: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "section_duration_seconds",
			Help:      "Time to process one graph section.",
			Buckets:   prometheus.DefBuckets,
		}),
		sectionNodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "section_nodes_total",
			Help:      "Nodes submitted and executed through the scheduler.",
		}, []string{"outcome"}),
		graphs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_duration_seconds",
			Help:      "Time to process a whole graph.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(
		m.translations, m.mapFailures, m.unwinds,
		m.cacheOps, m.cacheBytes,
		m.rpcCalls, m.rpcBytes, m.rpcDuration,
		m.dispatched, m.dispatchTime, m.coreState,
		m.sections, m.sectionNodes, m.graphs,
	)
	if runtime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry exposes the underlying registry, for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) TranslationHit(core domain.Core, class domain.MemClass) {
	m.translations.WithLabelValues(core.String(), class.String(), "hit").Inc()
}

func (m *Metrics) TranslationMiss(core domain.Core, class domain.MemClass) {
	m.translations.WithLabelValues(core.String(), class.String(), "miss").Inc()
}

func (m *Metrics) MapFailure(core domain.Core, class domain.MemClass) {
	m.mapFailures.WithLabelValues(core.String(), class.String()).Inc()
}

func (m *Metrics) Unwind(class domain.MemClass) {
	m.unwinds.WithLabelValues(class.String()).Inc()
}

func (m *Metrics) CacheOp(op coherency.Op, class domain.MemClass, bytes int) {
	m.cacheOps.WithLabelValues(op.String(), class.String()).Inc()
	m.cacheBytes.WithLabelValues(op.String()).Add(float64(bytes))
}

func (m *Metrics) Call(core domain.Core, fn string, status domain.Status, d time.Duration, sent, received int) {
	m.rpcCalls.WithLabelValues(core.String(), fn, status.String()).Inc()
	m.rpcBytes.WithLabelValues(core.String(), "sent").Add(float64(sent))
	m.rpcBytes.WithLabelValues(core.String(), "received").Add(float64(received))
	m.rpcDuration.WithLabelValues(core.String(), fn).Observe(d.Seconds())
}

func (m *Metrics) Dispatched(core domain.Core, nodes int, err error, seconds float64) {
	m.dispatched.WithLabelValues(core.String(), strconv.FormatBool(err != nil)).Add(float64(nodes))
	m.dispatchTime.WithLabelValues(core.String()).Observe(seconds)
}

func (m *Metrics) StateChanged(core domain.Core, s dispatch.State) {
	m.coreState.WithLabelValues(core.String()).Set(float64(s))
}

func (m *Metrics) SectionProcessed(nodes, executed int, seconds float64) {
	m.sectionNodes.WithLabelValues("submitted").Add(float64(nodes))
	m.sectionNodes.WithLabelValues("executed").Add(float64(executed))
	m.sections.Observe(seconds)
}

func (m *Metrics) GraphProcessed(sections int, seconds float64) {
	m.graphs.Observe(seconds)
}
