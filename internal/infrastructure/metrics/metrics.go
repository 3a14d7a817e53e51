package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/dropsched/internal/plans"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	plansCreated   *prometheus.CounterVec
	entriesCreated *prometheus.CounterVec
	claims         *prometheus.CounterVec
	delivered      *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	workerTicks    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		plansCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dropsched",
			Name:      "plans_created_total",
			Help:      "Distribution plans created.",
		}, []string{"family"}),
		entriesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dropsched",
			Name:      "entries_scheduled_total",
			Help:      "Plan entries scheduled.",
		}, []string{"family"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dropsched",
			Name:      "claim_attempts_total",
			Help:      "Claim attempts by outcome.",
		}, []string{"outcome"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dropsched",
			Name:      "entries_delivered_total",
			Help:      "Entries marked delivered.",
		}, []string{"family"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dropsched",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		workerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dropsched",
			Name:      "worker_ticks_total",
			Help:      "Delivery worker poll ticks.",
		}),
	}
	m.reg.MustRegister(
		m.plansCreated, m.entriesCreated, m.claims, m.delivered, m.httpRequests, m.workerTicks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) PlanCreated(family plans.Family, entries int) {
	m.plansCreated.WithLabelValues(string(family)).Inc()
	m.entriesCreated.WithLabelValues(string(family)).Add(float64(entries))
}

func (m *Metrics) ClaimAttempt(outcome string) {
	m.claims.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Delivered(family plans.Family) {
	m.delivered.WithLabelValues(string(family)).Inc()
}

func (m *Metrics) HTTPRequest(route string, code int) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (m *Metrics) WorkerTick() { m.workerTicks.Inc() }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

var _ plans.Recorder = (*Metrics)(nil)
