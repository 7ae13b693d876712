// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

// Package config loads process configuration from defaults, an optional YAML
// file, the environment and command-line flags, in that order of precedence.
package config

import (
	"net"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/eventdesk/eventdesk/internal/auth"
	"github.com/eventdesk/eventdesk/internal/notify"
	"github.com/eventdesk/eventdesk/internal/ratelimit"
	"github.com/eventdesk/eventdesk/internal/store"
)

// Config is the full process configuration.
type Config struct {
	Log       LogConfig       `koanf:"log"`
	HTTP      HTTPConfig      `koanf:"http"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Tokens    TokensConfig    `koanf:"tokens"`
	Auth      AuthConfig      `koanf:"auth"`
	Password  PasswordConfig  `koanf:"password"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Mail      MailConfig      `koanf:"mail"`
}

// LogConfig selects the log format and level.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr           string        `koanf:"addr"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	// TrustedProxies are CIDR ranges allowed to set X-Forwarded-For.
	TrustedProxies []string      `koanf:"trusted_proxies"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`
}

// RedisConfig configures Redis. An empty Addr disables the shared denylist
// and rate limiter.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// Enabled reports whether Redis is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// TokensConfig holds one secret and lifetime per token purpose.
type TokensConfig struct {
	Issuer        string        `koanf:"issuer"`
	AccessSecret  string        `koanf:"access_secret"`
	AccessTTL     time.Duration `koanf:"access_ttl"`
	RefreshSecret string        `koanf:"refresh_secret"`
	RefreshTTL    time.Duration `koanf:"refresh_ttl"`
	ResetSecret   string        `koanf:"reset_secret"`
	ResetTTL      time.Duration `koanf:"reset_ttl"`
}

// AuthConfig tunes the auth flows.
type AuthConfig struct {
	ClientURL        string        `koanf:"client_url"`
	SignupRoles      []string      `koanf:"signup_roles"`
	LockoutThreshold int           `koanf:"lockout_threshold"`
	LockoutDuration  time.Duration `koanf:"lockout_duration"`
	OTPTTL           time.Duration `koanf:"otp_ttl"`
	OTPMaxAttempts   int           `koanf:"otp_max_attempts"`
}

// PasswordConfig tunes argon2id.
type PasswordConfig struct {
	Time      uint32 `koanf:"time"`
	MemoryKiB uint32 `koanf:"memory_kib"`
	Threads   uint8  `koanf:"threads"`
}

// RateLimitConfig throttles the credential endpoints. Limit 0 disables it.
type RateLimitConfig struct {
	Limit  int           `koanf:"limit"`
	Window time.Duration `koanf:"window"`
}

// MailConfig selects how email leaves the process.
type MailConfig struct {
	// Driver is log, smtp or amqp.
	Driver string     `koanf:"driver"`
	SMTP   SMTPConfig `koanf:"smtp"`
	AMQP   AMQPConfig `koanf:"amqp"`
}

// SMTPConfig configures the SMTP relay.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

// AMQPConfig configures the RabbitMQ email queue.
type AMQPConfig struct {
	URL   string `koanf:"url"`
	Queue string `koanf:"queue"`
}

// Mail drivers.
const (
	MailDriverLog  = "log"
	MailDriverSMTP = "smtp"
	MailDriverAMQP = "amqp"
)

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if c.Database.URL == "" {
		return invalid("database.url", "database url is required")
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http address is required")
	}
	for _, cidr := range c.HTTP.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return invalid("http.trusted_proxies", "trusted proxy %q is not a CIDR range", cidr)
		}
	}
	if c.Auth.ClientURL == "" {
		return invalid("auth.client_url", "client url is required")
	}
	if _, err := c.SignupPolicy(); err != nil {
		return err
	}
	if _, err := auth.NewTokenSigner(c.TokenConfig()); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "tokens").Wrap(err)
	}
	if c.RateLimit.Limit < 0 || (c.RateLimit.Limit > 0 && c.RateLimit.Window <= 0) {
		return invalid("ratelimit", "rate limit window must be positive")
	}

	switch c.Mail.Driver {
	case MailDriverLog:
	case MailDriverSMTP:
		if c.Mail.SMTP.Host == "" || c.Mail.SMTP.From == "" {
			return invalid("mail.smtp", "smtp host and from are required")
		}
	case MailDriverAMQP:
		if c.Mail.AMQP.URL == "" {
			return invalid("mail.amqp.url", "amqp url is required")
		}
	default:
		return invalid("mail.driver", "mail driver must be log, smtp or amqp, got %q", c.Mail.Driver)
	}
	return nil
}

// TokenConfig returns the signer configuration.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Issuer:        c.Tokens.Issuer,
		Access:        auth.SigningKey{Secret: []byte(c.Tokens.AccessSecret), TTL: c.Tokens.AccessTTL},
		Refresh:       auth.SigningKey{Secret: []byte(c.Tokens.RefreshSecret), TTL: c.Tokens.RefreshTTL},
		PasswordReset: auth.SigningKey{Secret: []byte(c.Tokens.ResetSecret), TTL: c.Tokens.ResetTTL},
	}
}

// SignupPolicy returns the self-assignable role policy.
func (c *Config) SignupPolicy() (auth.SignupPolicy, error) {
	roles := make([]auth.Role, 0, len(c.Auth.SignupRoles))
	for _, name := range c.Auth.SignupRoles {
		role, ok := auth.ParseRole(name)
		if !ok {
			return auth.SignupPolicy{}, oops.Code("CONFIG_INVALID").
				With("key", "auth.signup_roles").
				Errorf("unknown role %q", name)
		}
		if role == auth.RoleSuperAdmin {
			return auth.SignupPolicy{}, oops.Code("CONFIG_INVALID").
				With("key", "auth.signup_roles").
				Errorf("SUPER_ADMIN cannot be self-assigned")
		}
		roles = append(roles, role)
	}
	return auth.SignupPolicy{SelfAssignable: roles}, nil
}

// ServiceConfig returns the auth service configuration.
func (c *Config) ServiceConfig() (auth.Config, error) {
	policy, err := c.SignupPolicy()
	if err != nil {
		return auth.Config{}, err
	}
	return auth.Config{
		ClientURL: strings.TrimRight(c.Auth.ClientURL, "/"),
		Signup:    policy,
		Lockout: auth.LockoutPolicy{
			Threshold: c.Auth.LockoutThreshold,
			Duration:  c.Auth.LockoutDuration,
		},
	}, nil
}

// OTPConfig returns the OTP manager configuration.
func (c *Config) OTPConfig() auth.OTPConfig {
	return auth.OTPConfig{TTL: c.Auth.OTPTTL, MaxAttempts: c.Auth.OTPMaxAttempts}
}

// Argon2Params returns the password hashing parameters.
func (c *Config) Argon2Params() auth.Argon2Params {
	p := auth.DefaultArgon2Params
	if c.Password.Time > 0 {
		p.Time = c.Password.Time
	}
	if c.Password.MemoryKiB > 0 {
		p.Memory = c.Password.MemoryKiB
	}
	if c.Password.Threads > 0 {
		p.Threads = c.Password.Threads
	}
	return p
}

// PoolConfig returns the database pool configuration.
func (c *Config) PoolConfig() store.PoolConfig {
	return store.PoolConfig{
		MaxConns:        c.Database.MaxConns,
		MinConns:        c.Database.MinConns,
		MaxConnLifetime: c.Database.MaxConnLifetime,
	}
}

// RateRule returns the request throttling rule.
func (c *Config) RateRule() ratelimit.Rule {
	return ratelimit.Rule{Limit: c.RateLimit.Limit, Window: c.RateLimit.Window}
}

// SMTP returns the SMTP notifier configuration.
func (c *Config) SMTP() notify.SMTPConfig {
	s := c.Mail.SMTP
	return notify.SMTPConfig{Host: s.Host, Port: s.Port, Username: s.Username, Password: s.Password, From: s.From}
}
