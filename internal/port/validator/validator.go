// Package validator defines the port for the PR validation pipeline backend.
// The pipeline shape is fixed (snapshot through teardown); how each stage is
// actually executed is pluggable.
package validator

import (
	"context"
	"time"
)

// Stage names, in execution order.
type Stage string

const (
	StageSnapshot       Stage = "snapshot"
	StageClone          Stage = "clone"
	StageSetup          Stage = "setup"
	StageDeploy         Stage = "deploy"
	StageStaticAnalysis Stage = "static-analysis"
	StageE2ETest        Stage = "e2e-test"
	StageTeardown       Stage = "teardown"
)

// Stages returns the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{
		StageSnapshot,
		StageClone,
		StageSetup,
		StageDeploy,
		StageStaticAnalysis,
		StageE2ETest,
		StageTeardown,
	}
}

// Request describes the pull request under validation.
type Request struct {
	ProjectID string
	RepoURL   string
	PRID      int64
	PRTitle   string
}

// StageResult is the outcome of one pipeline stage.
type StageResult struct {
	Stage    Stage
	Passed   bool
	Output   string
	Duration time.Duration
}

// Backend executes individual validation stages. Implementations report a
// failed stage through StageResult.Passed, not through the error return;
// errors are reserved for infrastructure problems (stage could not run).
type Backend interface {
	RunStage(ctx context.Context, stage Stage, req Request) (StageResult, error)
}
