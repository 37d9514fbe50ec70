package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// ErrNonZeroExit is returned by Run when the program exits with a non-zero code.
var ErrNonZeroExit = errors.New("process: non-zero exit")

// Output is what a finished batch program produced.
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// command builds cfg as a process-group leader.
func command(ctx context.Context, cfg Config) *exec.Cmd {
	cmd := exec.CommandContext(ctx, cfg.Binary, cfg.Args...) //nolint:gosec // binary comes from operator configuration
	setProcessGroup(cmd)
	if cfg.Env != nil {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	cmd.Dir = cfg.WorkDir
	return cmd
}

// Run executes cfg to completion, capturing stdout and stderr. Cancelling
// ctx kills the whole process group.
func Run(ctx context.Context, cfg Config) (Output, error) {
	cmd := command(ctx, cfg)
	cmd.Cancel = func() error { return killGroup(cmd) }

	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		return out, fmt.Errorf("%s: %w", cfg.Name, ctx.Err())
	case errors.As(err, &exitErr):
		return out, fmt.Errorf("%s exited with code %d: %w", cfg.Name, out.ExitCode, ErrNonZeroExit)
	case err != nil:
		return out, fmt.Errorf("running %s: %w", cfg.Name, err)
	}
	return out, nil
}

// StartDetached launches a desktop application and forgets it. The child
// leads its own process group so it outlives DeskPilot.
func StartDetached(binary string, args []string, workDir string) (int, error) {
	cmd := command(context.Background(), Config{Binary: binary, Args: args, WorkDir: workDir})
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", binary, err)
	}
	go cmd.Wait() //nolint:errcheck // Reap only; the exit status is of no interest
	return cmd.Process.Pid, nil
}
