package orchestrator

import (
	"sort"
	"strings"

	"pricewatch/internal/types"
)

// Environment variable names the orchestrator sets on a child from the
// non-secret fields of SpawnConfig.
const (
	EnvWorkerRole        = "WORKER_ROLE"
	EnvBindAddr          = "BIND_ADDR"
	EnvQueueName         = "QUEUE_NAME"
	EnvAppEnv            = "APP_ENV"
	EnvLogLevel          = "LOG_LEVEL"
	EnvFeedBaseURL       = "FEED_BASE_URL"
	EnvProviders         = "PROVIDERS"
	EnvAllowPrivateFeeds = "ALLOW_PRIVATE_FEEDS"
)

// SettingKeys is every non-credential variable ChildEnv may set.
var SettingKeys = []string{
	EnvWorkerRole,
	EnvBindAddr,
	EnvQueueName,
	EnvAppEnv,
	EnvLogLevel,
	EnvFeedBaseURL,
	EnvProviders,
	EnvAllowPrivateFeeds,
}

// CredentialKeys is the complete allow-list of connection variables copied
// from the parent environment into a child.
var CredentialKeys = []string{
	"DATABASE_URL",
	"DATABASE_URL_SESSION",
	"PGHOST",
	"PGUSER",
	"PGPASSWORD",
	"PGDATABASE",
	"PGPORT",
}

// Credentials carries the connection settings a child process needs. Every
// field is a SecretString so a logged SpawnConfig never leaks a password.
type Credentials struct {
	DatabaseURL        types.SecretString
	DatabaseURLSession types.SecretString
	PGHost             types.SecretString
	PGUser             types.SecretString
	PGPassword         types.SecretString
	PGDatabase         types.SecretString
	PGPort             types.SecretString
}

// CredentialsFromEnviron picks the allow-listed variables out of environ,
// which has the os.Environ() "KEY=value" shape. Keys match exactly; anything
// else in environ is ignored.
func CredentialsFromEnviron(environ []string) Credentials {
	var c Credentials
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if field := c.field(key); field != nil {
			*field = types.SecretString(value)
		}
	}
	return c
}

func (c *Credentials) field(key string) *types.SecretString {
	switch key {
	case "DATABASE_URL":
		return &c.DatabaseURL
	case "DATABASE_URL_SESSION":
		return &c.DatabaseURLSession
	case "PGHOST":
		return &c.PGHost
	case "PGUSER":
		return &c.PGUser
	case "PGPASSWORD":
		return &c.PGPassword
	case "PGDATABASE":
		return &c.PGDatabase
	case "PGPORT":
		return &c.PGPort
	}
	return nil
}

// environ renders the non-empty credentials in CredentialKeys order.
func (c Credentials) environ() []string {
	out := make([]string, 0, len(CredentialKeys))
	for _, key := range CredentialKeys {
		if v := *c.field(key); !v.IsZero() {
			out = append(out, key+"="+v.Unmask())
		}
	}
	return out
}

// settings renders the role settings of cfg keyed by variable name. Unset
// values are empty.
func (c SpawnConfig) settings() map[string]string {
	m := map[string]string{
		EnvWorkerRole:  string(c.Role),
		EnvBindAddr:    c.BindAddr,
		EnvQueueName:   c.QueueName,
		EnvAppEnv:      c.Environment,
		EnvLogLevel:    c.LogLevel,
		EnvFeedBaseURL: c.FeedBaseURL,
		EnvProviders:   strings.Join(c.Providers, ","),
	}
	if c.AllowPrivateFeeds {
		m[EnvAllowPrivateFeeds] = "true"
	}
	return m
}

// ChildEnv is the exact environment a child started from cfg receives: the
// configured credentials plus the role settings it needs to load its own
// config. Nothing from the parent process is inherited.
func ChildEnv(cfg SpawnConfig) []string {
	env := cfg.Credentials.environ()
	settings := cfg.settings()
	for _, key := range SettingKeys {
		if v := settings[key]; v != "" {
			env = append(env, key+"="+v)
		}
	}
	sort.Strings(env)
	return env
}
