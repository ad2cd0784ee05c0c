package process

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Exec runs short-lived helper commands. The zero value is usable.
type Exec struct {
	Logger Logger
}

func (e Exec) log() Logger {
	if e.Logger == nil {
		return noopLogger{}
	}
	return e.Logger
}

// Output runs a command to completion and returns its trimmed stdout.
// A non-zero exit is an error carrying the command's stderr.
func (e Exec) Output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // helper paths come from config
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("running %s: %w: %s", name, err, msg)
		}
		return "", fmt.Errorf("running %s: %w", name, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Spawn starts a command without waiting for it. The child is reaped in
// the background and its exit status is logged.
func (e Exec) Spawn(name string, args ...string) error {
	cmd := exec.Command(name, args...) //nolint:gosec // helper paths come from config
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawning %s: %w", name, err)
	}

	log := e.log()
	log.Debug("spawned helper", "command", name, "args", args, "pid", cmd.Process.Pid)
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Warn("helper exited with error", "command", name, "error", err)
		}
	}()
	return nil
}
