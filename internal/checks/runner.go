package checks

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/popeye/internal/pipeline"
	"github.com/randalmurphal/popeye/internal/snapshot"
)

const (
	// DefaultTimeout bounds a single check's wall-clock time.
	DefaultTimeout = 2 * time.Minute
	// stderrSummaryLimit bounds the stderr summary stored on results. The end
	// of the stream is kept since that is where summaries usually land.
	stderrSummaryLimit = 2000
)

// detectShell prefers bash for consistent behavior, falling back to sh and
// then $SHELL.
func detectShell() string {
	if _, err := exec.LookPath("bash"); err == nil {
		return "bash"
	}
	if _, err := exec.LookPath("sh"); err == nil {
		return "sh"
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "sh"
}

// Outcome pairs a check result with the captured stdout. The stdout is kept
// off the result record and persisted separately as a check artifact.
type Outcome struct {
	Result pipeline.GateCheckResult
	Stdout string
}

// Results strips outcomes down to the bare check results.
func Results(outcomes []Outcome) []pipeline.GateCheckResult {
	out := make([]pipeline.GateCheckResult, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Result
	}
	return out
}

// Runner executes gate checks inside a project directory.
type Runner struct {
	projectDir string
	timeout    time.Duration
	shell      string
	logger     *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout overrides the per-check timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a check runner for projectDir.
func NewRunner(projectDir string, opts ...Option) *Runner {
	r := &Runner{
		projectDir: projectDir,
		timeout:    DefaultTimeout,
		shell:      detectShell(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunCheck executes a single command as a gate check. A deny-listed command
// is rejected without executing; pass means exit code zero.
func (r *Runner) RunCheck(ctx context.Context, ct pipeline.CheckType, command string) Outcome {
	result := pipeline.GateCheckResult{
		CheckType: ct,
		Command:   command,
		Timestamp: time.Now().UTC(),
	}

	if command == "" {
		result.Status = pipeline.CheckSkip
		return Outcome{Result: result}
	}
	if err := SanitizeCommand(command); err != nil {
		r.logger.Warn("check command rejected", "check", ct, "command", command)
		result.Status = pipeline.CheckFail
		result.ExitCode = -1
		result.StderrSummary = "Command rejected"
		return Outcome{Result: result}
	}

	start := time.Now()
	exitCode, stdout, stderr, timedOut := r.execute(ctx, command)
	result.DurationMS = time.Since(start).Milliseconds()
	result.ExitCode = exitCode
	result.StderrSummary = summarizeStderr(stderr, timedOut)

	if timedOut || exitCode != 0 {
		result.Status = pipeline.CheckFail
	} else {
		result.Status = pipeline.CheckPass
	}

	r.logger.Info("check completed",
		"check", ct, "status", result.Status, "exit_code", exitCode, "duration_ms", result.DurationMS)
	return Outcome{Result: result, Stdout: stdout}
}

// execute runs command under the shell in the project directory, capturing
// output. On timeout the process is killed and timedOut is true.
func (r *Runner) execute(ctx context.Context, command string) (exitCode int, stdout, stderr string, timedOut bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.shell, "-c", command)
	cmd.Dir = r.projectDir

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return -1, outBuf.String(), errBuf.String(), true
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), outBuf.String(), errBuf.String(), false
		}
		return -1, outBuf.String(), errBuf.String() + "\n" + err.Error(), false
	}
	return 0, outBuf.String(), errBuf.String(), false
}

// RunAllChecks runs build, test, lint, typecheck, and migration from the
// resolved command set. Absent commands yield skip. Independent checks run
// concurrently; results keep the fixed order regardless of completion order.
func (r *Runner) RunAllChecks(ctx context.Context, commands *snapshot.ResolvedCommands) []Outcome {
	order := []pipeline.CheckType{
		pipeline.CheckBuild,
		pipeline.CheckTest,
		pipeline.CheckLint,
		pipeline.CheckTypecheck,
		pipeline.CheckMigration,
	}

	outcomes := make([]Outcome, len(order))
	g, ctx := errgroup.WithContext(ctx)
	for i, ct := range order {
		g.Go(func() error {
			outcomes[i] = r.RunCheck(ctx, ct, commands.Get(string(ct)))
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// summarizeStderr bounds stderr to the summary limit, keeping the tail.
func summarizeStderr(stderr string, timedOut bool) string {
	s := strings.TrimSpace(stderr)
	if timedOut {
		if s != "" {
			s += "\n"
		}
		s += "[timeout] command killed after exceeding the check timeout"
	}
	if len(s) <= stderrSummaryLimit {
		return s
	}
	return "...[truncated]\n" + s[len(s)-stderrSummaryLimit:]
}
