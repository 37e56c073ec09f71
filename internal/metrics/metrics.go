package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/metis-devops/task-sender/internal/runner"
)

// Metrics records run progress as prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	IterationsTotal    *prometheus.CounterVec
	IterationDuration  prometheus.Histogram
	VerificationsTotal *prometheus.CounterVec
	GasUsedTotal       prometheus.Counter
	LastBlock          prometheus.Gauge
	PlannedIterations  prometheus.Gauge
}

var _ runner.Recorder = (*Metrics)(nil)

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		IterationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "task_sender_iterations_total",
			Help: "Completed iterations by outcome",
		}, []string{"outcome"}),
		IterationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "task_sender_iteration_duration_seconds",
			Help:    "Duration of one submit and verify iteration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		VerificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "task_sender_verifications_total",
			Help: "Verification calls by result",
		}, []string{"result"}),
		GasUsedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "task_sender_gas_used_total",
			Help: "Gas used by confirmed transactions",
		}),
		LastBlock: factory.NewGauge(prometheus.GaugeOpts{
			Name: "task_sender_last_block",
			Help: "Block number of the last confirmed transaction",
		}),
		PlannedIterations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "task_sender_planned_iterations",
			Help: "Number of iterations requested for the run",
		}),
	}
}

// Registry holds only the collectors above.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RunStarted(runID string, total int) {
	m.PlannedIterations.Set(float64(total))
}

func (m *Metrics) IterationDone(res *runner.Result) {
	m.IterationsTotal.WithLabelValues(res.OutcomeLabel()).Inc()
	m.IterationDuration.Observe(res.Duration.Seconds())

	if res.Outcome != nil {
		m.GasUsedTotal.Add(float64(res.Outcome.GasUsed))
		if res.Outcome.BlockNumber != nil {
			m.LastBlock.Set(float64(res.Outcome.BlockNumber.Uint64()))
		}
	}

	switch res.Stage {
	case runner.StageNone:
		m.VerificationsTotal.WithLabelValues("verified").Inc()
	case runner.StageRejected:
		m.VerificationsTotal.WithLabelValues("rejected").Inc()
	case runner.StageVerify:
		m.VerificationsTotal.WithLabelValues("error").Inc()
	}
}
