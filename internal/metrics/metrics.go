// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal counts transition requests by progression type and
	// outcome (accepted, rejected, conflict, error).
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exp_cases_transitions_total",
		Help: "Stage transition requests by progression type and outcome.",
	}, []string{"type", "result"})

	// CasesCreatedTotal counts created cases.
	CasesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exp_cases_created_total",
		Help: "Cases created.",
	})

	// AutoAssignFailures counts auto-assignment attempts that left the case
	// unassigned.
	AutoAssignFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exp_cases_auto_assign_failures_total",
		Help: "Auto-assignment attempts that found no eligible user or failed to apply.",
	})
)
