// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventdesk/eventdesk/internal/auth"
	"github.com/eventdesk/eventdesk/pkg/errutil"
)

func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("EVENTDESK_DATABASE__URL", "postgres://eventdesk@localhost/eventdesk")
	t.Setenv("EVENTDESK_AUTH__CLIENT_URL", "https://app.eventdesk.test/")
	t.Setenv("EVENTDESK_TOKENS__ACCESS_SECRET", "access-secret")
	t.Setenv("EVENTDESK_TOKENS__REFRESH_SECRET", "refresh-secret")
	t.Setenv("EVENTDESK_TOKENS__RESET_SECRET", "reset-secret")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	validEnv(t)
	cfg, err := Load(Options{})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Tokens.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Tokens.RefreshTTL)
	assert.Equal(t, auth.DefaultLockoutThreshold, cfg.Auth.LockoutThreshold)
	assert.Equal(t, MailDriverLog, cfg.Mail.Driver)
	assert.False(t, cfg.Redis.Enabled())

	svc, err := cfg.ServiceConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://app.eventdesk.test", svc.ClientURL, "trailing slash trimmed")
	assert.ElementsMatch(t, auth.DefaultSignupPolicy.SelfAssignable, svc.Signup.SelfAssignable)
}

func TestLoad_Precedence(t *testing.T) {
	validEnv(t)
	path := writeFile(t, "eventdesk.yaml", `
log:
  format: text
http:
  addr: ":9000"
  allowed_origins: ["https://a.test", "https://b.test"]
redis:
  addr: "localhost:6379"
auth:
  otp_ttl: 5m
`)
	t.Setenv("EVENTDESK_HTTP__ADDR", ":9100")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log-level=debug"}))

	cfg, err := Load(Options{File: path, Flags: fs})
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.Log.Format, "file beats defaults")
	assert.Equal(t, ":9100", cfg.HTTP.Addr, "env beats file")
	assert.Equal(t, "debug", cfg.Log.Level, "set flag beats defaults")
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr, "unset flag leaves default")
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 5*time.Minute, cfg.OTPConfig().TTL)
	assert.True(t, cfg.Redis.Enabled())
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	validEnv(t)
	t.Setenv("EVENTDESK_MAIL__DRIVER", "smtp")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--mail-driver", "amqp"}))

	cfg, err := Load(Options{Flags: fs})
	require.NoError(t, err)
	assert.Equal(t, MailDriverAMQP, cfg.Mail.Driver)
}

func TestLoad_EnvLists(t *testing.T) {
	validEnv(t)
	t.Setenv("EVENTDESK_AUTH__SIGNUP_ROLES", "PARTICIPANT")
	t.Setenv("EVENTDESK_HTTP__TRUSTED_PROXIES", "10.0.0.0/8,192.168.1.0/24")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.0/24"}, cfg.HTTP.TrustedProxies)
	policy, err := cfg.SignupPolicy()
	require.NoError(t, err)
	assert.Equal(t, []auth.Role{auth.RoleParticipant}, policy.SelfAssignable)
}

func TestLoad_DotEnv(t *testing.T) {
	path := writeFile(t, ".env", "EVENTDESK_REDIS__ADDR=cache:6379\n")
	// godotenv never overrides variables already set; register cleanup first.
	t.Setenv("EVENTDESK_REDIS__ADDR", "")
	require.NoError(t, os.Unsetenv("EVENTDESK_REDIS__ADDR"))

	cfg, err := Load(Options{DotEnv: path})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)

	_, err = Load(Options{DotEnv: filepath.Join(t.TempDir(), "missing.env")})
	assert.NoError(t, err, "missing .env is ignored")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(Options{File: filepath.Join(t.TempDir(), "nope.yaml")})
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
		code   string
	}{
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format", ""},
		{"no database", func(c *Config) { c.Database.URL = "" }, "database.url", ""},
		{"bad trusted proxy", func(c *Config) { c.HTTP.TrustedProxies = []string{"10.0.0.1"} }, "http.trusted_proxies", ""},
		{"no client url", func(c *Config) { c.Auth.ClientURL = "" }, "auth.client_url", ""},
		{"super admin signup", func(c *Config) { c.Auth.SignupRoles = []string{"SUPER_ADMIN"} }, "auth.signup_roles", ""},
		{"unknown role", func(c *Config) { c.Auth.SignupRoles = []string{"JANITOR"} }, "auth.signup_roles", ""},
		{"shared secrets", func(c *Config) { c.Tokens.RefreshSecret = c.Tokens.AccessSecret }, "tokens", "TOKEN_CONFIG_INVALID"},
		{"missing secret", func(c *Config) { c.Tokens.ResetSecret = "" }, "tokens", "TOKEN_CONFIG_INVALID"},
		{"bad rate window", func(c *Config) { c.RateLimit.Window = 0 }, "ratelimit", ""},
		{"unknown mail driver", func(c *Config) { c.Mail.Driver = "pigeon" }, "mail.driver", ""},
		{"smtp without host", func(c *Config) { c.Mail.Driver = MailDriverSMTP }, "mail.smtp", ""},
		{"amqp without url", func(c *Config) { c.Mail.Driver = MailDriverAMQP }, "mail.amqp.url", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validEnv(t)
			cfg, err := Load(Options{})
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			code := tt.code
			if code == "" {
				code = "CONFIG_INVALID"
			}
			errutil.AssertErrorCode(t, err, code)
			errutil.AssertErrorContext(t, err, "key", tt.key)
		})
	}
}

func TestArgon2Params(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, auth.DefaultArgon2Params, cfg.Argon2Params())

	cfg.Password = PasswordConfig{Time: 3, MemoryKiB: 32 * 1024, Threads: 2}
	p := cfg.Argon2Params()
	assert.Equal(t, uint32(3), p.Time)
	assert.Equal(t, uint32(32*1024), p.Memory)
	assert.Equal(t, uint8(2), p.Threads)
	assert.Equal(t, auth.DefaultArgon2Params.KeyLen, p.KeyLen)
}
