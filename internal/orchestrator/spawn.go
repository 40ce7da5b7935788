// Package orchestrator launches the worker manager and ingest workers as
// separate OS processes. It hands each child an explicit environment built
// from a SpawnConfig and never supervises the child after start: restarts and
// health polling belong to whatever runs the orchestrator.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"pricewatch/internal/types"
)

// Role selects which binary a child runs.
type Role string

const (
	RoleWorkerManager Role = "worker-manager"
	RoleIngestWorker  Role = "ingest-worker"
)

// ParseRole validates s as a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleWorkerManager, RoleIngestWorker:
		return r, nil
	}
	return "", types.NewAppError(types.ErrCodeValidationInvalidValue, fmt.Sprintf("unknown role %q", s), nil)
}

// Executable is the default binary name for the role, resolved on PATH.
func (r Role) Executable() string { return string(r) }

// SpawnConfig is everything that crosses the process boundary.
type SpawnConfig struct {
	Role        Role
	BindAddr    string
	QueueName   string
	Credentials Credentials

	// Settings the child's config loader requires. They are not secrets.
	FeedBaseURL       string
	Providers         []string
	Environment       string
	LogLevel          string
	AllowPrivateFeeds bool

	// Executable overrides Role.Executable(). A value containing a path
	// separator is used as-is.
	Executable string
	Args       []string

	// Child output. Nil discards.
	Stdout io.Writer
	Stderr io.Writer
}

// Validate checks the role-specific requirements before anything is started.
func (c SpawnConfig) Validate() error {
	if _, err := ParseRole(string(c.Role)); err != nil {
		return err
	}
	if c.Role == RoleIngestWorker && c.QueueName == "" {
		return types.NewAppError(types.ErrCodeConfigMissing, "ingest-worker requires a queue name", nil)
	}
	if strings.TrimSpace(c.FeedBaseURL) == "" {
		return types.NewAppError(types.ErrCodeConfigMissing, string(c.Role)+" requires a feed base url", nil)
	}
	if c.Credentials.DatabaseURL.IsZero() && c.Credentials.DatabaseURLSession.IsZero() && c.Credentials.PGHost.IsZero() {
		return types.NewAppError(types.ErrCodeConfigMissing, "no database credentials to forward", nil)
	}
	return nil
}

// LaunchError reports that the child executable could not be resolved or
// started.
type LaunchError struct {
	Role       Role
	Executable string
	Err        error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s (%s): %v", e.Role, e.Executable, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ProcessHandle is a started child. The orchestrator keeps no reference to it.
type ProcessHandle struct {
	Role Role
	cmd  *exec.Cmd
}

// PID returns the child's process ID.
func (h *ProcessHandle) PID() int { return h.cmd.Process.Pid }

// Wait blocks until the child exits and returns its exit error, if any.
func (h *ProcessHandle) Wait() error { return h.cmd.Wait() }

// Signal delivers sig to the child.
func (h *ProcessHandle) Signal(sig os.Signal) error { return h.cmd.Process.Signal(sig) }

// Spawner starts children and logs each launch.
type Spawner struct {
	logger *slog.Logger
}

// NewSpawner creates a Spawner. A nil logger falls back to slog.Default().
func NewSpawner(logger *slog.Logger) *Spawner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Spawner{logger: logger}
}

// Spawn validates cfg, resolves the executable and starts it with exactly
// ChildEnv(cfg). The child is not tied to ctx; cancelling ctx after Spawn
// returns does not stop it. Launch failures are config_launch_failed errors
// wrapping a *LaunchError.
func (s *Spawner) Spawn(ctx context.Context, cfg SpawnConfig) (*ProcessHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	exe := cfg.Executable
	if exe == "" {
		exe = cfg.Role.Executable()
	}

	path, err := exec.LookPath(exe)
	if err != nil {
		return nil, launchFailed(cfg.Role, exe, err)
	}

	cmd := exec.Command(path, cfg.Args...)
	cmd.Env = ChildEnv(cfg)
	cmd.Stdout = cfg.Stdout
	cmd.Stderr = cfg.Stderr

	if err := cmd.Start(); err != nil {
		return nil, launchFailed(cfg.Role, path, err)
	}

	s.logger.InfoContext(ctx, "process spawned",
		"role", string(cfg.Role),
		"executable", path,
		"pid", cmd.Process.Pid,
		"bind_addr", cfg.BindAddr,
		"queue", cfg.QueueName,
	)
	return &ProcessHandle{Role: cfg.Role, cmd: cmd}, nil
}

func launchFailed(role Role, exe string, err error) error {
	return types.NewAppError(types.ErrCodeConfigLaunch, "failed to launch "+string(role), &LaunchError{
		Role:       role,
		Executable: exe,
		Err:        err,
	})
}
