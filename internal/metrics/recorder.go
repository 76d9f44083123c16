// Package metrics exposes the service's prometheus counters. A nil
// *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cleanflow"

// Mutation outcomes
const (
	OutcomeApplied = "applied"
	OutcomeStale   = "stale"
	OutcomeError   = "error"
)

// Recorder holds every metric the service emits
type Recorder struct {
	once            sync.Once
	reg             *prom.Registry
	mutations       *prom.CounterVec
	mutationLatency *prom.HistogramVec
	workflowEvents  *prom.CounterVec
	jobTransitions  *prom.CounterVec
	staleJobs       prom.Gauge
	deltas          *prom.CounterVec
	droppedClients  prom.Counter
	subscribers     prom.Gauge
	cacheLookups    *prom.CounterVec
}

// NewRecorder constructs and registers the metrics on reg (a fresh registry when nil)
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{reg: reg}
	r.once.Do(func() {
		r.mutations = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Task mutations by field and outcome",
		}, []string{"field", "outcome"})
		r.mutationLatency = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "mutation_duration_seconds",
			Help:      "Time spent applying a mutation to the task record store",
			Buckets:   prom.DefBuckets,
		}, []string{"field"})
		r.workflowEvents = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_events_total",
			Help:      "Workflow events by type and outcome",
		}, []string{"type", "outcome"})
		r.jobTransitions = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_transitions_total",
			Help:      "Workflow job state transitions",
		}, []string{"from", "to"})
		r.staleJobs = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "workflow_idle_jobs",
			Help:      "Non-terminal jobs idle beyond the configured threshold at the last reconcile",
		})
		r.deltas = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_deltas_total",
			Help:      "Deltas fanned out to subscribers by kind",
		}, []string{"kind"})
		r.droppedClients = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_subscribers_total",
			Help:      "Subscribers disconnected because their buffer was full",
		})
		r.subscribers = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "broadcast_subscribers",
			Help:      "Currently connected subscribers",
		})
		r.cacheLookups = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "status_cache_lookups_total",
			Help:      "Status cache lookups by result",
		}, []string{"result"})
		reg.MustRegister(r.mutations, r.mutationLatency, r.workflowEvents, r.jobTransitions,
			r.staleJobs, r.deltas, r.droppedClients, r.subscribers, r.cacheLookups)
	})
	return r
}

func (r *Recorder) IncMutation(field, outcome string) {
	if r == nil {
		return
	}
	r.mutations.WithLabelValues(field, outcome).Inc()
}

func (r *Recorder) ObserveMutation(field string, d time.Duration) {
	if r == nil {
		return
	}
	r.mutationLatency.WithLabelValues(field).Observe(d.Seconds())
}

func (r *Recorder) IncWorkflowEvent(eventType, outcome string) {
	if r == nil {
		return
	}
	r.workflowEvents.WithLabelValues(eventType, outcome).Inc()
}

func (r *Recorder) IncTransition(from, to string) {
	if r == nil {
		return
	}
	r.jobTransitions.WithLabelValues(from, to).Inc()
}

func (r *Recorder) SetIdleJobs(n int) {
	if r == nil {
		return
	}
	r.staleJobs.Set(float64(n))
}

func (r *Recorder) IncDelta(kind string) {
	if r == nil {
		return
	}
	r.deltas.WithLabelValues(kind).Inc()
}

func (r *Recorder) IncDroppedSubscriber() {
	if r == nil {
		return
	}
	r.droppedClients.Inc()
}

func (r *Recorder) AddSubscribers(n int) {
	if r == nil {
		return
	}
	r.subscribers.Add(float64(n))
}

func (r *Recorder) IncCacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// Handler serves the registry in the prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.HandlerFor(prom.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
