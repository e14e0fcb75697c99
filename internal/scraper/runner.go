package scraper

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTimeout is the wall-clock budget of one scraper run.
const DefaultTimeout = 300000 * time.Millisecond

// RawOutput is what one scraper process left behind. It is produced once per
// Run and never mutated afterwards.
type RawOutput struct {
	Stdout string
	Stderr string
	// ExitCode is nil when the process was killed or never started.
	ExitCode *int
	TimedOut bool
	// Killed is set when the runner signalled the process, either on timeout or
	// because the caller's context was cancelled.
	Killed   bool
	StartErr error
	Duration time.Duration
}

// ProcessRunner runs one external scraper executable to completion.
type ProcessRunner interface {
	Run(ctx context.Context, executable string, args []string, timeout time.Duration) RawOutput
}

// Runner starts scraper executables as child processes. It holds no per-run
// state, so one Runner may serve any number of concurrent runs.
type Runner struct {
	// Dir is the working directory of the child; empty means the current one.
	Dir string
	// KillGrace is how long a signalled child may keep its pipes open before
	// it is killed outright.
	KillGrace time.Duration
}

// NewRunner creates a runner rooted at dir.
func NewRunner(dir string) *Runner {
	return &Runner{Dir: dir, KillGrace: 5 * time.Second}
}

var _ ProcessRunner = (*Runner)(nil)

// Run executes executable with args, waiting at most timeout. Non-zero exit
// codes are reported, not treated as errors: the caller still parses stdout.
func (r *Runner) Run(ctx context.Context, executable string, args []string, timeout time.Duration) RawOutput {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, executable, args...)
	cmd.Dir = r.Dir
	cmd.Stdin = nil // reads from the null device

	stdout := &syncBuffer{}
	stderr := &syncBuffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	var killed atomic.Bool
	configureProcess(cmd, &killed)
	cmd.WaitDelay = r.KillGrace

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return RawOutput{
			Stderr:   err.Error(),
			StartErr: err,
			Duration: time.Since(start),
		}
	}

	waitErr := cmd.Wait()
	out := RawOutput{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if killed.Load() {
		out.Killed = true
		out.TimedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded)
		return out
	}

	code := 0
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		code = exitErr.ExitCode()
	case cmd.ProcessState != nil:
		code = cmd.ProcessState.ExitCode()
	default:
		code = -1
	}
	out.ExitCode = &code
	return out
}

// syncBuffer accumulates a stream chunk by chunk. exec copies each pipe on its
// own goroutine; the mutex keeps String safe if read while a copy is running.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
