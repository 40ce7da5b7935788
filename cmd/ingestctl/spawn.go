package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"pricewatch/internal/app"
	"pricewatch/internal/orchestrator"
)

type spawnFlags struct {
	role        string
	bindAddr    string
	queue       string
	feedBaseURL string
	executable  string
}

func newSpawnCmd() *cobra.Command {
	var f spawnFlags

	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Launch a worker process with a scrubbed environment",
		Long: `Spawn starts the worker-manager or ingest-worker binary as a child process.

The child receives only the database credentials found in this process's
environment plus the settings it needs to start: WORKER_ROLE, BIND_ADDR,
QUEUE_NAME, FEED_BASE_URL, PROVIDERS, APP_ENV, LOG_LEVEL and
ALLOW_PRIVATE_FEEDS. Settings are taken from this process's environment
unless a flag overrides them. SIGINT and SIGTERM are forwarded to the child,
and spawn exits when the child does.`,
		Example: `  ingestctl spawn --role ingest-worker --bind :8091 --queue steam.catalog`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildSpawnConfig(f, os.Environ(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			logger := app.NewLogger(cmd.ErrOrStderr(), os.Getenv("LOG_LEVEL"))
			h, err := orchestrator.NewSpawner(logger).Spawn(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigs)

			go func() {
				for sig := range sigs {
					logger.Info("forwarding signal", "signal", sig.String(), "pid", h.PID())
					if err := h.Signal(sig); err != nil {
						logger.Warn("signal forward failed", "error", err)
					}
				}
			}()

			err = h.Wait()
			logger.Info("child exited", slog.String("role", string(h.Role)), slog.Any("error", err))
			if err != nil {
				return fmt.Errorf("%s exited: %w", h.Role, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&f.role, "role", "", "worker-manager or ingest-worker")
	cmd.Flags().StringVar(&f.bindAddr, "bind", "", "BIND_ADDR for the child's health port")
	cmd.Flags().StringVar(&f.queue, "queue", "", "QUEUE_NAME (job kind) for an ingest-worker")
	cmd.Flags().StringVar(&f.feedBaseURL, "feed-base-url", "", "FEED_BASE_URL for the child (default: this process's FEED_BASE_URL)")
	cmd.Flags().StringVar(&f.executable, "exe", "", "Override the child binary (default: role name on PATH)")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func buildSpawnConfig(f spawnFlags, environ []string, stdout, stderr io.Writer) (orchestrator.SpawnConfig, error) {
	role, err := orchestrator.ParseRole(f.role)
	if err != nil {
		return orchestrator.SpawnConfig{}, err
	}

	lookup := environLookup(environ)
	feedBaseURL := f.feedBaseURL
	if feedBaseURL == "" {
		feedBaseURL = lookup(orchestrator.EnvFeedBaseURL)
	}
	allowPrivate, _ := strconv.ParseBool(lookup(orchestrator.EnvAllowPrivateFeeds))

	cfg := orchestrator.SpawnConfig{
		Role:              role,
		BindAddr:          f.bindAddr,
		QueueName:         f.queue,
		FeedBaseURL:       feedBaseURL,
		Providers:         splitList(lookup(orchestrator.EnvProviders)),
		Environment:       lookup(orchestrator.EnvAppEnv),
		LogLevel:          lookup(orchestrator.EnvLogLevel),
		AllowPrivateFeeds: allowPrivate,
		Credentials:       orchestrator.CredentialsFromEnviron(environ),
		Executable:        f.executable,
		Stdout:            stdout,
		Stderr:            stderr,
	}
	if err := cfg.Validate(); err != nil {
		return orchestrator.SpawnConfig{}, err
	}
	return cfg, nil
}

// environLookup returns a getter over an os.Environ-shaped slice. Later
// entries win, as with the real environment.
func environLookup(environ []string) func(string) string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return func(key string) string { return m[key] }
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
