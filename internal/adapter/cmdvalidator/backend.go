// Package cmdvalidator implements the validation backend port by running
// configured shell commands, one per stage. Stages with no configured
// command pass trivially.
package cmdvalidator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/port/validator"
	"github.com/agentdeck/agentdeck/internal/resilience"
)

// outputLimit caps the captured command output per stage.
const outputLimit = 16 * 1024

// Backend runs validation stages as shell commands. Stage commands across
// all concurrent validations share one execution pool.
type Backend struct {
	cfg  config.Validation
	pool *resilience.Pool
}

// New creates a command-runner backend from validation config.
func New(cfg config.Validation) *Backend {
	return &Backend{
		cfg:  cfg,
		pool: resilience.NewPool(cfg.MaxConcurrent),
	}
}

// RunStage executes the configured command for the stage. The PR under
// validation is exposed through environment variables so commands can check
// out and exercise the right branch.
func (b *Backend) RunStage(ctx context.Context, stage validator.Stage, req validator.Request) (validator.StageResult, error) {
	command := b.commandFor(stage)
	if command == "" {
		return validator.StageResult{Stage: stage, Passed: true, Output: "no command configured, skipped"}, nil
	}

	if b.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.StageTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if b.cfg.WorkDir != "" {
		cmd.Dir = b.cfg.WorkDir
	}
	cmd.Env = append(cmd.Environ(),
		"AGENTDECK_PROJECT_ID="+req.ProjectID,
		"AGENTDECK_REPO_URL="+req.RepoURL,
		fmt.Sprintf("AGENTDECK_PR_ID=%d", req.PRID),
		"AGENTDECK_PR_TITLE="+req.PRTitle,
	)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	err := b.pool.Run(ctx, cmd.Run)
	elapsed := time.Since(start)

	res := validator.StageResult{
		Stage:    stage,
		Passed:   err == nil,
		Output:   truncate(buf.String()),
		Duration: elapsed,
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// Command could not be started at all.
			return res, fmt.Errorf("stage %s: %w", stage, err)
		}
		slog.Debug("validation stage failed",
			"stage", stage, "exit_code", exitErr.ExitCode(), "elapsed", elapsed)
	}
	return res, nil
}

func (b *Backend) commandFor(stage validator.Stage) string {
	switch stage {
	case validator.StageClone:
		return b.cfg.CloneCommand
	case validator.StageSetup:
		return b.cfg.SetupCommand
	case validator.StageDeploy:
		return b.cfg.DeployCommand
	case validator.StageStaticAnalysis:
		return b.cfg.AnalyzeCommand
	case validator.StageE2ETest:
		return b.cfg.TestCommand
	default:
		// Snapshot and teardown have no external command; they bound the
		// pipeline for backends that manage infrastructure.
		return ""
	}
}

func truncate(s string) string {
	if len(s) <= outputLimit {
		return s
	}
	return s[:outputLimit] + "\n... (truncated)"
}
