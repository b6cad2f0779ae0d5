// Package metrics defines and registers all custom Prometheus metrics for the
// approval API. It is the single source of truth for metric names, labels,
// and help strings. Metrics register with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "approval"

// ── Operation metrics ─────────────────────────────────────────────────────────

// OperationsTotal counts mutating operations that reached a terminal phase.
// Labels:
//   - operation: the command name (e.g. "process_approval")
//   - outcome: "settled", "failed" or "abandoned" (cancelled before a worker accepted it)
//   - kind: the error kind on failure (e.g. "state_conflict"), empty when settled
var OperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Total number of mutating operations by terminal outcome.",
	},
	[]string{"operation", "outcome", "kind"},
)

// OperationsQueueDepth tracks the number of operations waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var OperationsQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "operations_queue_depth",
		Help:      "Current number of operations pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// OperationDuration measures how long an accepted operation takes to settle.
// Labels:
//   - operation: the command name
//   - outcome: "settled" or "failed"
var OperationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Duration of operations from acceptance by a worker to settlement.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"operation", "outcome"},
)

// ── Domain metrics ────────────────────────────────────────────────────────────

// ApprovalsRequestedTotal counts approvals opened.
// Label:
//   - kind: "transaction", "user_registration" or "role_update"
var ApprovalsRequestedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "approvals_requested_total",
		Help:      "Total number of approvals opened, by kind.",
	},
	[]string{"kind"},
)

// DecisionsTotal counts approvals decided.
// Labels:
//   - kind: the approval kind
//   - status: "approved" or "rejected"
var DecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Total number of approval decisions, by kind and outcome.",
	},
	[]string{"kind", "status"},
)

// TransactionsCreatedTotal counts create calls that returned a transaction.
// Label:
//   - replayed: "true" when an Idempotency-Key matched an earlier create
var TransactionsCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_created_total",
		Help:      "Total number of transactions created or replayed.",
	},
	[]string{"replayed"},
)

// TransactionsCompletedTotal counts explicit completions.
var TransactionsCompletedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_completed_total",
		Help:      "Total number of transactions completed through the completion call.",
	},
)
