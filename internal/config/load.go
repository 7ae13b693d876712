// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/eventdesk/eventdesk/internal/auth"
)

// EnvPrefix prefixes every environment variable read by Load. A double
// underscore separates levels: EVENTDESK_TOKENS__ACCESS_SECRET sets
// tokens.access_secret.
const EnvPrefix = "EVENTDESK_"

// Options tells Load where to look.
type Options struct {
	// File is an optional YAML file. A missing file is an error.
	File string
	// DotEnv is an optional .env file loaded into the environment first.
	// A missing file is ignored.
	DotEnv string
	// Flags are command-line overrides; only flags the user set are applied.
	Flags *pflag.FlagSet
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]any {
	return map[string]any{
		"log.format":             "json",
		"log.level":              "info",
		"http.addr":              ":8080",
		"http.read_timeout":      "15s",
		"http.write_timeout":     "15s",
		"metrics.addr":           "127.0.0.1:9100",
		"database.max_conns":     10,
		"tokens.issuer":          "eventdesk",
		"tokens.access_ttl":      auth.DefaultAccessTokenTTL.String(),
		"tokens.refresh_ttl":     auth.DefaultRefreshTokenTTL.String(),
		"tokens.reset_ttl":       auth.DefaultResetTokenTTL.String(),
		"auth.signup_roles":      []string{string(auth.RoleParticipant), string(auth.RoleOrganizer)},
		"auth.lockout_threshold": auth.DefaultLockoutThreshold,
		"auth.lockout_duration":  auth.DefaultLockoutDuration.String(),
		"auth.otp_ttl":           auth.DefaultOTPTTL.String(),
		"auth.otp_max_attempts":  auth.DefaultOTPMaxAttempts,
		"ratelimit.limit":        10,
		"ratelimit.window":       time.Minute.String(),
		"mail.driver":            MailDriverLog,
		"mail.smtp.port":         587,
		"mail.amqp.queue":        "email.outbound",
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-format":   "log.format",
	"log-level":    "log.level",
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"database-url": "database.url",
	"redis-addr":   "redis.addr",
	"mail-driver":  "mail.driver",
}

// BindFlags registers the flags understood by Load on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("http-addr", ":8080", "public API listen address")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics/health listen address (empty = disabled)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("redis-addr", "", "Redis address (empty = disabled)")
	fs.String("mail-driver", MailDriverLog, "email driver (log, smtp or amqp)")
}

// Load builds a Config. It does not validate; call Validate on the result.
func Load(opts Options) (*Config, error) {
	if opts.DotEnv != "" {
		if err := godotenv.Load(opts.DotEnv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.DotEnv).Wrap(err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}
	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.File).Wrap(err)
		}
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}
	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "decode").Wrap(err)
	}
	return &cfg, nil
}

// envKey maps EVENTDESK_A__B_C to a.b_c. List values are comma separated.
func envKey(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	switch key {
	case "http.allowed_origins", "http.trusted_proxies", "auth.signup_roles":
		return key, strings.Split(value, ",")
	}
	return key, value
}
