package telemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// HeldTxnMetrics holds all the metric instruments for the held-transaction
// core. It is the domain counterpart of a request-framework's RPC metrics:
// instead of RPCs started/handled, it tracks held transactions created,
// terminated, and currently open.
type HeldTxnMetrics struct {
	CreatedCounter             metric.Int64Counter
	CommittedCounter           metric.Int64Counter
	RolledBackCounter          metric.Int64Counter
	ReapedCounter              metric.Int64Counter
	ConcurrencyRejectedCounter metric.Int64Counter
	OperationLatencyHistogram  metric.Int64Histogram
	ActiveUpDownCounter        metric.Int64UpDownCounter
}

// NewHeldTxnMetrics creates and registers all the metrics for the
// held-transaction core against the given meter.
func NewHeldTxnMetrics(meter metric.Meter) (*HeldTxnMetrics, error) {
	created, err := meter.Int64Counter(
		"heldtxn.created_total",
		metric.WithDescription("Total number of held transactions created."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	committed, err := meter.Int64Counter(
		"heldtxn.committed_total",
		metric.WithDescription("Total number of held transactions committed."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	rolledBack, err := meter.Int64Counter(
		"heldtxn.rolled_back_total",
		metric.WithDescription("Total number of held transactions rolled back, by caller or reaper."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	reaped, err := meter.Int64Counter(
		"heldtxn.reaped_total",
		metric.WithDescription("Total number of held transactions rolled back by the reaper specifically."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	concurrencyRejected, err := meter.Int64Counter(
		"heldtxn.concurrency_rejected_total",
		metric.WithDescription("Total number of create calls rejected for exceeding max_concurrent."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	operationLatency, err := meter.Int64Histogram(
		"heldtxn.operation.duration",
		metric.WithDescription("The latency of operations submitted to a held transaction's worker."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	active, err := meter.Int64UpDownCounter(
		"heldtxn.active",
		metric.WithDescription("Number of currently open held transactions."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &HeldTxnMetrics{
		CreatedCounter:             created,
		CommittedCounter:           committed,
		RolledBackCounter:          rolledBack,
		ReapedCounter:              reaped,
		ConcurrencyRejectedCounter: concurrencyRejected,
		OperationLatencyHistogram:  operationLatency,
		ActiveUpDownCounter:        active,
	}, nil
}
