package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/google/shlex"
)

// CommandRunner executes a single command line of a stage or publish action.
// A non-nil error means the command failed, whatever the cause.
type CommandRunner interface {
	RunCommand(ctx context.Context, command string, env []string, output io.Writer) (exitCode int, err error)
}

// ShellRunner hands every command line to a shell, e.g. "sh -c".
type ShellRunner struct {
	Shell []string
	Dir   string
}

func NewShellRunner(shell, dir string) (*ShellRunner, error) {
	args, err := shlex.Split(shell)
	if err != nil {
		return nil, fmt.Errorf("invalid shell \"%s\" - %s", shell, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty shell")
	}
	return &ShellRunner{Shell: args, Dir: dir}, nil
}

func (r *ShellRunner) RunCommand(ctx context.Context, command string, env []string, output io.Writer) (int, error) {
	args := make([]string, 0, len(r.Shell)+1)
	args = append(args, r.Shell...)
	args = append(args, command)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Env = env
	cmd.Dir = r.Dir
	cmd.Stdout = output
	cmd.Stderr = output
	// do not wait forever for orphaned children holding the output pipe after a kill
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return exitErr.ExitCode(), ctxErr
		}
		return exitErr.ExitCode(), fmt.Errorf("exit status %d", exitErr.ExitCode())
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, ctxErr
	}
	return -1, err
}
