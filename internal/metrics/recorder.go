// Package metrics records pipeline observability data. Components depend on the
// Recorder interface and default to NoopRecorder.
package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultCached  ResultLabel = "cached"
	ResultFailed  ResultLabel = "failed"
)

// Recorder defines the observability hooks used by the orchestrator.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncCacheLookup(stage string, hit bool)
	ObserveCollaboratorCall(collaborator string, d time.Duration, success bool)
	IncDroppedProposals(reason string, n int)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)          {}
func (NoopRecorder) IncStageResult(string, ResultLabel)                  {}
func (NoopRecorder) IncCacheLookup(string, bool)                         {}
func (NoopRecorder) ObserveCollaboratorCall(string, time.Duration, bool) {}
func (NoopRecorder) IncDroppedProposals(string, int)                     {}

var _ Recorder = NoopRecorder{}
