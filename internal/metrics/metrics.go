/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics registers the Prometheus collectors the controller
// exposes on the manager's metrics endpoint, following the same
// Namespace/Subsystem/Name layering and direct registration against
// controller-runtime's shared Registry the teacher uses for its batcher
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	namespace = "node_failover"
	subsystem = "controller"
)

var (
	// PhaseTransitionsTotal counts phase writes made through
	// internal/store, labeled by the phase written: Store.Create counts
	// Pending, and Store.UpdateStatus counts every patch that sets a phase,
	// including Creating once per VM creation attempt. Records the Event
	// Router creates or moves to Recovering are written directly and are
	// not counted.
	PhaseTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "phase_transitions_total",
		Help:      "Count of NodeFailover phase transitions, labeled by the phase entered.",
	}, []string{"phase"})

	// VMCreationDuration observes wall-clock time spent in attemptCreate,
	// labeled by outcome so a slow failing call and a slow successful one
	// are distinguishable.
	VMCreationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "vm_creation_duration_seconds",
		Help:      "Duration of cloud substitute instance creation calls.",
		Buckets:   []float64{5, 15, 30, 60, 120, 180, 300, 600},
	}, []string{"outcome"})

	// VMCreationAttemptsTotal counts every attemptCreate call, labeled by
	// outcome, independent of the duration histogram so attempt counts
	// remain exact even if a histogram bucket boundary changes later.
	VMCreationAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "vm_creation_attempts_total",
		Help:      "Count of cloud substitute creation attempts, labeled by outcome.",
	}, []string{"outcome"})

	// LockContentionTotal counts Acquire calls that returned without the
	// lock because another replica already held it.
	LockContentionTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "lock_contention_total",
		Help:      "Count of vm-create lock acquisitions that lost to another replica.",
	})
)

func init() {
	crmetrics.Registry.MustRegister(
		PhaseTransitionsTotal,
		VMCreationDuration,
		VMCreationAttemptsTotal,
		LockContentionTotal,
	)
}
