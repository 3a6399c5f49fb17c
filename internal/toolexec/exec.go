package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/me/toolflow/internal/scheduler"
	"github.com/me/toolflow/pkg/model"
)

// ExecTool returns the builtin "exec" handler. It runs the "command"
// parameter through the shell and returns stdout, stderr, and exit_code.
//
// Parameters:
//   - command (string, required): shell command line
//   - dir (string): working directory
//   - env (map): extra environment variables, appended to the inherited set
//   - stdin (string): data piped to the process
func ExecTool(logger *slog.Logger) scheduler.Handler {
	log := logger.With("component", "exec-tool")

	return func(ctx context.Context, call *model.ToolCall) (any, error) {
		command, err := stringParam(call, "command", true)
		if err != nil {
			return nil, err
		}
		dir, err := stringParam(call, "dir", false)
		if err != nil {
			return nil, err
		}
		stdin, err := stringParam(call, "stdin", false)
		if err != nil {
			return nil, err
		}

		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
		cmd.Dir = dir
		if stdin != "" {
			cmd.Stdin = strings.NewReader(stdin)
		}

		if raw, ok := call.Parameters["env"]; ok {
			env, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("call %s: parameter \"env\" must be a map", call.ID)
			}
			cmd.Env = os.Environ()
			for k, v := range env {
				cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%v", k, v))
			}
		}

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		log.Debug("running command", "call_id", call.ID, "command", command)
		runErr := cmd.Run()

		exitCode := 0
		if runErr != nil {
			var exitErr *exec.ExitError
			if errors.As(runErr, &exitErr) {
				exitCode = exitErr.ExitCode()
			} else {
				return nil, fmt.Errorf("call %s: start command: %w", call.ID, runErr)
			}
		}

		output := map[string]any{
			"stdout":    stdout.String(),
			"stderr":    stderr.String(),
			"exit_code": exitCode,
		}
		if exitCode != 0 {
			return output, fmt.Errorf("command exited with code %d: %s",
				exitCode, firstLine(stderr.String()))
		}
		return output, nil
	}
}

func stringParam(call *model.ToolCall, name string, required bool) (string, error) {
	raw, ok := call.Parameters[name]
	if !ok {
		if required {
			return "", fmt.Errorf("call %s: parameter %q is required", call.ID, name)
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("call %s: parameter %q must be a string", call.ID, name)
	}
	if required && s == "" {
		return "", fmt.Errorf("call %s: parameter %q is required", call.ID, name)
	}
	return s, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
