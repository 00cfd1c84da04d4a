package nestedset

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nestedset_mutations_total",
		Help: "Structural mutations by operation and result",
	}, []string{"op", "result"})

	mutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nestedset_mutation_duration_seconds",
		Help:    "Time to run a structural mutation including the store commit",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
	}, []string{"op"})

	shiftedNodes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nestedset_shifted_nodes",
		Help:    "Nodes rewritten by a structural mutation",
		Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
	}, []string{"op"})
)

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, ErrPreconditionViolation):
		return "precondition"
	case errors.Is(err, ErrConsistencyViolation):
		return "inconsistent"
	default:
		return "error"
	}
}
