package astrohelion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	propagationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astrohelion_propagations_total",
		Help: "Number of propagations by model variant and outcome.",
	}, []string{"model", "outcome"})

	integrationSteps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "astrohelion_integration_steps_total",
		Help: "Number of accepted integration steps.",
	})

	eventsLocated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astrohelion_events_located_total",
		Help: "Number of events located by event kind.",
	}, []string{"event"})

	correctionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astrohelion_corrections_total",
		Help: "Number of multiple shooting corrections by status.",
	}, []string{"status"})

	correctionIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "astrohelion_correction_iterations",
		Help:    "Number of Newton iterations per correction.",
		Buckets: prometheus.LinearBuckets(1, 1, 20),
	})

	familyMembers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astrohelion_family_members_total",
		Help: "Number of family members computed by continuation parameter.",
	}, []string{"parameter"})
)
