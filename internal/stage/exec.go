package stage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"
)

const (
	defaultCaptureMaxBytes = 64 * 1024
	defaultTermGrace       = 5 * time.Second
)

// Invocation is one collaborator run.
type Invocation struct {
	Argv []string
	Dir  string
	Env  map[string]string
}

// Result carries the captured output of a finished collaborator.
type Result struct {
	ExitCode        int
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
}

// Runner runs collaborators. A non-zero exit is a *CollaboratorError.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// ExecRunner runs collaborators as child processes in their own process
// group. When ctx ends the group gets SIGTERM, then SIGKILL after TermGrace.
type ExecRunner struct {
	CaptureMaxBytes int
	TermGrace       time.Duration
}

// NewExecRunner returns an ExecRunner with default limits.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{CaptureMaxBytes: defaultCaptureMaxBytes, TermGrace: defaultTermGrace}
}

type limitedBuffer struct {
	max       int
	buf       bytes.Buffer
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if b.max <= 0 {
		return n, nil
	}
	remain := b.max - b.buf.Len()
	if remain > 0 {
		if remain > len(p) {
			remain = len(p)
		}
		_, _ = b.buf.Write(p[:remain])
	}
	if len(p) > remain {
		b.truncated = true
	}
	return n, nil
}

func (b *limitedBuffer) String() string { return b.buf.String() }

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	if len(inv.Argv) == 0 {
		return Result{}, errors.New("empty command")
	}
	program := inv.Argv[0]
	cmd := exec.Command(program, inv.Argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = applyEnvOverlay(os.Environ(), inv.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	outBuf := &limitedBuffer{max: r.CaptureMaxBytes}
	errBuf := &limitedBuffer{max: r.CaptureMaxBytes}
	cmd.Stdout = outBuf
	cmd.Stderr = errBuf

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, &CollaboratorError{Program: program, ExitCode: -1, Err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var runErr error
	cancelled := false
	select {
	case runErr = <-done:
	case <-ctx.Done():
		cancelled = true
		signalGroup(cmd, syscall.SIGTERM)
		grace := time.NewTimer(r.TermGrace)
		select {
		case runErr = <-done:
			grace.Stop()
		case <-grace.C:
			signalGroup(cmd, syscall.SIGKILL)
			runErr = <-done
		}
	}

	res := Result{
		Stdout:          outBuf.String(),
		Stderr:          errBuf.String(),
		StdoutTruncated: outBuf.truncated,
		StderrTruncated: errBuf.truncated,
	}
	if cancelled {
		res.ExitCode = -2
		return res, fmt.Errorf("%s: %w", program, ctx.Err())
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, &CollaboratorError{Program: program, ExitCode: res.ExitCode, Stderr: res.Stderr}
		}
		res.ExitCode = -1
		return res, &CollaboratorError{Program: program, ExitCode: -1, Stderr: res.Stderr, Err: runErr}
	}
	return res, nil
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if pid := cmd.Process.Pid; pid > 0 {
		if err := syscall.Kill(-pid, sig); err == nil {
			return
		}
	}
	_ = cmd.Process.Signal(sig)
}

// applyEnvOverlay returns base with overlay applied, sorted by name.
func applyEnvOverlay(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return append([]string(nil), base...)
	}
	m := map[string]string{}
	for _, kv := range base {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		m[kv[:i]] = kv[i+1:]
	}
	for k, v := range overlay {
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func mergeVars(layers ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, l := range layers {
		for k, v := range l {
			out[k] = v
		}
	}
	return out
}
