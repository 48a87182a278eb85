package adapter

import "time"

// FlowMetrics receives the counters the flow controller emits. The Prometheus
// implementation lives in the metrics infra package; NoopFlowMetrics backs
// tests and tools that run without an exporter.
type FlowMetrics interface {
	FlowInitiated(gatewayID string)
	FlowProceeded(gatewayID, flowType string)
	FlowProcessed(gatewayID, flowType, bucket string)
	InitiationFailure(gatewayID string)
	IntegrityFailure(gatewayID string)
	LockContention(gatewayID string)
	ProcessingDuration(gatewayID string, d time.Duration)
}

type NoopFlowMetrics struct{}

var _ FlowMetrics = NoopFlowMetrics{}

func (NoopFlowMetrics) FlowInitiated(string) {}

func (NoopFlowMetrics) FlowProceeded(string, string) {}

func (NoopFlowMetrics) FlowProcessed(string, string, string) {}

func (NoopFlowMetrics) InitiationFailure(string) {}

func (NoopFlowMetrics) IntegrityFailure(string) {}

func (NoopFlowMetrics) LockContention(string) {}

func (NoopFlowMetrics) ProcessingDuration(string, time.Duration) {}
