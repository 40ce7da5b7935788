package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/types"
)

const helperArg = "orchestrator-print-env"

// TestHelperProcess is not a real test. Spawn re-executes the test binary
// with helperArg, and this function then prints the child's environment.
func TestHelperProcess(t *testing.T) {
	if len(os.Args) == 0 || os.Args[len(os.Args)-1] != helperArg {
		return
	}
	for _, kv := range os.Environ() {
		fmt.Println(kv)
	}
	os.Exit(0)
}

func validConfig() SpawnConfig {
	return SpawnConfig{
		Role:        RoleIngestWorker,
		BindAddr:    ":8091",
		QueueName:   "steam.catalog",
		FeedBaseURL: "https://feeds.example.com/v1",
		Credentials: CredentialsFromEnviron([]string{"DATABASE_URL=postgres://x"}),
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("ingest-worker")
	require.NoError(t, err)
	assert.Equal(t, RoleIngestWorker, r)

	_, err = ParseRole("api")
	assert.Equal(t, types.ErrCodeValidationInvalidValue, types.CodeOf(err))
}

func TestSpawnConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*SpawnConfig)
		wantCode types.ErrorCode
	}{
		{"valid", func(*SpawnConfig) {}, ""},
		{"manager needs no queue", func(c *SpawnConfig) { c.Role = RoleWorkerManager; c.QueueName = "" }, ""},
		{"bad role", func(c *SpawnConfig) { c.Role = "scheduler" }, types.ErrCodeValidationInvalidValue},
		{"worker without queue", func(c *SpawnConfig) { c.QueueName = "" }, types.ErrCodeConfigMissing},
		{"no feed base url", func(c *SpawnConfig) { c.FeedBaseURL = " " }, types.ErrCodeConfigMissing},
		{"pg variables only", func(c *SpawnConfig) {
			c.Credentials = CredentialsFromEnviron([]string{"PGHOST=db", "PGUSER=app"})
		}, ""},
		{"no credentials", func(c *SpawnConfig) { c.Credentials = Credentials{} }, types.ErrCodeConfigMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Equal(t, tt.wantCode, types.CodeOf(cfg.Validate()))
		})
	}
}

func TestSpawn_MissingExecutable(t *testing.T) {
	cfg := validConfig()
	cfg.Executable = "pricewatch-no-such-binary-for-test"

	h, err := NewSpawner(nil).Spawn(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, h)

	assert.Equal(t, types.ErrCodeConfigLaunch, types.CodeOf(err))
	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.Equal(t, RoleIngestWorker, launchErr.Role)
	assert.True(t, errors.Is(err, exec.ErrNotFound))
}

func TestSpawn_InvalidConfigStartsNothing(t *testing.T) {
	cfg := validConfig()
	cfg.QueueName = ""
	cfg.Executable = "/bin/false"

	_, err := NewSpawner(nil).Spawn(context.Background(), cfg)
	assert.Equal(t, types.ErrCodeConfigMissing, types.CodeOf(err))
}

func TestSpawn_ChildSeesOnlyChildEnv(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	t.Setenv("AWS_SECRET_ACCESS_KEY", "leak-me")

	var out bytes.Buffer
	cfg := validConfig()
	cfg.Executable = exe
	cfg.Args = []string{"-test.run=^TestHelperProcess$", "--", helperArg}
	cfg.Stdout = &out

	h, err := NewSpawner(nil).Spawn(context.Background(), cfg)
	require.NoError(t, err)
	assert.Positive(t, h.PID())
	assert.Equal(t, RoleIngestWorker, h.Role)
	require.NoError(t, h.Wait())

	var got []string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if strings.Contains(line, "=") {
			got = append(got, line)
		}
	}
	assert.ElementsMatch(t, ChildEnv(cfg), got)
	assert.NotContains(t, out.String(), "leak-me")
}
