package gate

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tts_gateway"

// Metrics instruments admission and synthesis outcomes.
type Metrics struct {
	inFlight prometheus.Gauge
	refused  prometheus.Counter
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "synthesis_in_flight",
			Help:      "Number of synthesis attempts currently admitted",
		}),
		refused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_refused_total",
			Help:      "Total number of synthesis attempts refused at capacity",
		}),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "synthesis_duration_seconds",
				Help:      "Duration of admitted synthesis attempts in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"engine", "status"}, // status: success, error
		),
	}

	if reg == nil {
		return metrics, nil
	}

	for _, collector := range []prometheus.Collector{metrics.inFlight, metrics.refused, metrics.duration} {
		err := reg.Register(collector)
		if err != nil {
			return nil, fmt.Errorf("failed to register gate metric: %w", err)
		}
	}

	return metrics, nil
}

// RefusedCounter exposes the refusal counter for inspection.
func (m *Metrics) RefusedCounter() prometheus.Counter {
	return m.refused
}
