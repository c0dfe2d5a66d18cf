package checks

import (
	"context"
	"os/exec"
	"time"

	"github.com/randalmurphal/popeye/internal/pipeline"
)

// DefaultStartTimeout is how long the start check lets the process run
// before declaring it healthy.
const DefaultStartTimeout = 10 * time.Second

// RunStartCheck launches the start command and watches it for the given
// window. A process still alive at the deadline passes; an early non-zero
// exit fails. An early clean exit passes (one-shot start scripts exist).
func (r *Runner) RunStartCheck(ctx context.Context, command string, timeout time.Duration) pipeline.GateCheckResult {
	result := pipeline.GateCheckResult{
		CheckType: pipeline.CheckStart,
		Command:   command,
		Timestamp: time.Now().UTC(),
	}
	if command == "" {
		result.Status = pipeline.CheckSkip
		return result
	}
	if err := SanitizeCommand(command); err != nil {
		result.Status = pipeline.CheckFail
		result.ExitCode = -1
		result.StderrSummary = "Command rejected"
		return result
	}
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}

	start := time.Now()
	cmd := exec.Command(r.shell, "-c", command)
	cmd.Dir = r.projectDir
	if err := cmd.Start(); err != nil {
		result.Status = pipeline.CheckFail
		result.ExitCode = -1
		result.StderrSummary = err.Error()
		result.DurationMS = time.Since(start).Milliseconds()
		return result
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		result.DurationMS = time.Since(start).Milliseconds()
		if err != nil {
			result.Status = pipeline.CheckFail
			result.ExitCode = cmd.ProcessState.ExitCode()
			result.StderrSummary = "process exited before the start deadline"
		} else {
			result.Status = pipeline.CheckPass
		}
	case <-time.After(timeout):
		// Survived the window: healthy. Reap it.
		_ = cmd.Process.Kill()
		<-done
		result.DurationMS = time.Since(start).Milliseconds()
		result.Status = pipeline.CheckPass
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		result.DurationMS = time.Since(start).Milliseconds()
		result.Status = pipeline.CheckFail
		result.StderrSummary = "start check canceled"
	}

	r.logger.Info("start check completed", "status", result.Status, "duration_ms", result.DurationMS)
	return result
}
