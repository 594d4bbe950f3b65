package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentdeck"

// Metrics holds all agentdeck metric instruments.
type Metrics struct {
	RunsStarted      metric.Int64Counter
	RunsCompleted    metric.Int64Counter
	RunsFailed       metric.Int64Counter
	ValidationStages metric.Int64Counter
	RunDuration      metric.Float64Histogram
	RemoteLatency    metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RunsStarted, err = meter.Int64Counter("agentdeck.runs.started",
		metric.WithDescription("Number of agent runs started"))
	if err != nil {
		return nil, err
	}

	m.RunsCompleted, err = meter.Int64Counter("agentdeck.runs.completed",
		metric.WithDescription("Number of agent runs that reached a terminal success state"))
	if err != nil {
		return nil, err
	}

	m.RunsFailed, err = meter.Int64Counter("agentdeck.runs.failed",
		metric.WithDescription("Number of agent runs that ended in error"))
	if err != nil {
		return nil, err
	}

	m.ValidationStages, err = meter.Int64Counter("agentdeck.validation.stages",
		metric.WithDescription("Number of PR validation stages executed"))
	if err != nil {
		return nil, err
	}

	m.RunDuration, err = meter.Float64Histogram("agentdeck.run.duration_seconds",
		metric.WithDescription("Agent run duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.RemoteLatency, err = meter.Float64Histogram("agentdeck.remote.latency_seconds",
		metric.WithDescription("Remote agent API request latency in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
