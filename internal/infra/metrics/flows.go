package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"payment-flows/internal/domain/ports/adapter"
)

func init() {
	register(
		flowsInitiatedTotal,
		flowsProceededTotal,
		flowsProcessedTotal,
		flowInitiationFailures,
		flowIntegrityFailures,
		flowLockContention,
		flowProcessingSeconds,
	)
}

var (
	flowsInitiatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_flows_initiated_total",
			Help: "Transaction records created, per gateway.",
		},
		[]string{"gateway"},
	)

	flowsProceededTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_flows_proceeded_total",
			Help: "Successful remote initiations, per gateway and flow type.",
		},
		[]string{"gateway", "flow_type"},
	)

	flowsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_flows_processed_total",
			Help: "Gateway responses processed, per gateway, flow type and outcome bucket.",
		},
		[]string{"gateway", "flow_type", "bucket"},
	)

	flowInitiationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_flow_initiation_failures_total",
			Help: "Remote initiation failures (record left retryable at Queued).",
		},
		[]string{"gateway"},
	)

	flowIntegrityFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_flow_integrity_failures_total",
			Help: "Response payloads rejected by signature validation.",
		},
		[]string{"gateway"},
	)

	flowLockContention = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_flow_lock_contention_total",
			Help: "ProcessResponse calls that found the record locked and replayed the saved result.",
		},
		[]string{"gateway"},
	)

	flowProcessingSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_flow_processing_seconds",
			Help:    "End-to-end ProcessResponse duration.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"gateway"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// FlowRecorder exposes the flow counters behind the adapter.FlowMetrics port
// so the use case layer stays free of Prometheus imports.
type FlowRecorder struct{}

var _ adapter.FlowMetrics = FlowRecorder{}

func (FlowRecorder) FlowInitiated(gateway string) { IncFlowInitiated(gateway) }

func (FlowRecorder) FlowProceeded(gateway, flowType string) { IncFlowProceeded(gateway, flowType) }

func (FlowRecorder) FlowProcessed(gateway, flowType, bucket string) {
	IncFlowProcessed(gateway, flowType, bucket)
}

func (FlowRecorder) InitiationFailure(gateway string) { IncInitiationFailure(gateway) }

func (FlowRecorder) IntegrityFailure(gateway string) { IncIntegrityFailure(gateway) }

func (FlowRecorder) LockContention(gateway string) { IncLockContention(gateway) }

func (FlowRecorder) ProcessingDuration(gateway string, d time.Duration) { ObserveProcessing(gateway, d) }

func IncFlowInitiated(gateway string) {
	flowsInitiatedTotal.WithLabelValues(norm(gateway)).Inc()
}

func IncFlowProceeded(gateway, flowType string) {
	flowsProceededTotal.WithLabelValues(norm(gateway), norm(flowType)).Inc()
}

func IncFlowProcessed(gateway, flowType, bucket string) {
	flowsProcessedTotal.WithLabelValues(norm(gateway), norm(flowType), norm(bucket)).Inc()
}

func IncInitiationFailure(gateway string) {
	flowInitiationFailures.WithLabelValues(norm(gateway)).Inc()
}

func IncIntegrityFailure(gateway string) {
	flowIntegrityFailures.WithLabelValues(norm(gateway)).Inc()
}

func IncLockContention(gateway string) {
	flowLockContention.WithLabelValues(norm(gateway)).Inc()
}

func ObserveProcessing(gateway string, d time.Duration) {
	flowProcessingSeconds.WithLabelValues(norm(gateway)).Observe(d.Seconds())
}
