package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rovergrid.ai/internal/persistence/indexdb"
	"rovergrid.ai/internal/sim/driver"
)

// Metrics owns a private registry so several servers (and tests) can coexist.
type Metrics struct {
	reg *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	rejectedTotal *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runMoves      prometheus.Histogram
	httpRequests  *prometheus.CounterVec
}

func NewMetrics(svc *driver.Service) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rover_runs_total",
				Help: "Finished runs by transport and termination reason",
			},
			[]string{"transport", "reason"},
		),
		rejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rover_runs_rejected_total",
				Help: "Runs that failed or were refused, by transport and error code",
			},
			[]string{"transport", "code"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rover_run_duration_seconds",
				Help:    "Wall time of a run",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"transport"},
		),
		runMoves: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rover_run_moves",
				Help:    "Move tokens per finished run",
				Buckets: prometheus.ExponentialBuckets(8, 4, 10),
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rover_http_requests_total",
				Help: "HTTP API requests",
			},
			[]string{"method", "path", "status"},
		),
	}
	m.reg.MustRegister(
		m.runsTotal,
		m.rejectedTotal,
		m.runDuration,
		m.runMoves,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if svc != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: "rover_runs_in_flight", Help: "Runs currently executing"},
			func() float64 { return float64(svc.InFlight()) },
		))
		svc.OnRun(m.ObserveRun)
	}
	return m
}

// RegisterIndexStats exposes the SQLite writer queue.
func (m *Metrics) RegisterIndexStats(stats func() indexdb.Stats) {
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: "rover_index_queue_depth", Help: "Pending SQLite index writes"},
			func() float64 { return float64(stats().QueueDepth) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: "rover_index_dropped_steps_total", Help: "Step rows dropped because the index fell behind"},
			func() float64 { return float64(stats().DropStepTotal) },
		),
	)
}

func (m *Metrics) ObserveRun(transport string, rep driver.Report, err error) {
	if err != nil {
		m.rejectedTotal.WithLabelValues(transport, driver.ErrorCode(err)).Inc()
		return
	}
	m.runsTotal.WithLabelValues(transport, string(rep.Result.Reason)).Inc()
	m.runDuration.WithLabelValues(transport).Observe(rep.Duration.Seconds())
	m.runMoves.Observe(float64(rep.Result.Steps))
}

func (m *Metrics) recordHTTP(method, path, status string) {
	m.httpRequests.WithLabelValues(method, path, status).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
