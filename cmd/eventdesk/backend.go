// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/eventdesk/eventdesk/internal/auth"
	"github.com/eventdesk/eventdesk/internal/auth/postgres"
	authredis "github.com/eventdesk/eventdesk/internal/auth/redis"
	"github.com/eventdesk/eventdesk/internal/config"
	"github.com/eventdesk/eventdesk/internal/notify"
	"github.com/eventdesk/eventdesk/internal/observability"
	"github.com/eventdesk/eventdesk/internal/ratelimit"
	"github.com/eventdesk/eventdesk/internal/store"
)

const (
	readinessTimeout  = 2 * time.Second
	rateLimitPrefix   = "eventdesk:rl:"
	denylistKeyPrefix = authredis.DefaultKeyPrefix
)

// newBackend connects to PostgreSQL (and Redis when configured) and wires
// the auth service.
func newBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Backend, error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pool, err := store.Open(ctx, cfg.Database.URL, cfg.PoolConfig())
	if err != nil {
		return nil, err
	}
	closers = append(closers, pool.Close)
	checks := []observability.ReadinessChecker{store.ReadinessCheck(pool, readinessTimeout)}

	var (
		redisClient *goredis.Client
		denylist    auth.Denylist
	)
	if cfg.Redis.Enabled() {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("error closing redis client", "error", err)
			}
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			closeAll()
			return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Redis.Addr).Wrap(err)
		}
		denylist = authredis.NewDenylist(redisClient, denylistKeyPrefix)
		checks = append(checks, store.ReadinessCheck(redisPinger{redisClient}, readinessTimeout))
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	notifier, closeNotifier, err := newNotifier(cfg, logger)
	if err != nil {
		closeAll()
		return nil, err
	}
	closers = append(closers, closeNotifier)
	if metrics != nil {
		notifier = notify.Observed(notifier, metrics)
	}

	svc, err := newAuthService(cfg, authStores{
		users:   postgres.NewUserRepository(pool),
		refresh: postgres.NewRefreshTokenRepository(pool),
		otps:    postgres.NewOTPRepository(pool),
	}, notifier, denylist, logger)
	if err != nil {
		closeAll()
		return nil, err
	}

	limiter, err := newLimiter(cfg.RateRule(), redisClient)
	if err != nil {
		closeAll()
		return nil, err
	}

	return &Backend{
		Auth:    svc,
		Limiter: limiter,
		Ready: func() bool {
			for _, check := range checks {
				if !check() {
					return false
				}
			}
			return true
		},
		Close: closeAll,
	}, nil
}

type authStores struct {
	users   auth.UserRepository
	refresh auth.RefreshTokenRepository
	otps    auth.OTPRepository
}

// newAuthService assembles the auth service from its stores and collaborators.
// denylist may be nil.
func newAuthService(cfg *config.Config, stores authStores, notifier auth.Notifier, denylist auth.Denylist, logger *slog.Logger) (*auth.Service, error) {
	signer, err := auth.NewTokenSigner(cfg.TokenConfig())
	if err != nil {
		return nil, err
	}
	otp, err := auth.NewOTPManager(stores.otps, notifier, cfg.OTPConfig(), logger)
	if err != nil {
		return nil, err
	}
	svcCfg, err := cfg.ServiceConfig()
	if err != nil {
		return nil, err
	}
	return auth.NewService(auth.Deps{
		Users:         stores.users,
		RefreshTokens: stores.refresh,
		OTP:           otp,
		Hasher:        auth.NewArgon2idHasherWithParams(cfg.Argon2Params()),
		Signer:        signer,
		Notifier:      notifier,
		Denylist:      denylist,
		Logger:        logger,
	}, svcCfg)
}

// newNotifier returns the outbound email notifier selected by mail.driver
// and a function that releases it.
func newNotifier(cfg *config.Config, logger *slog.Logger) (auth.Notifier, func(), error) {
	switch cfg.Mail.Driver {
	case config.MailDriverSMTP:
		n, err := notify.NewSMTP(cfg.SMTP())
		if err != nil {
			return nil, nil, err
		}
		return n, func() {}, nil
	case config.MailDriverAMQP:
		p, err := notify.NewPublisher(cfg.Mail.AMQP.URL, cfg.Mail.AMQP.Queue, nil)
		if err != nil {
			return nil, nil, err
		}
		return p, func() {
			if err := p.Close(); err != nil {
				logger.Warn("error closing amqp publisher", "error", err)
			}
		}, nil
	default:
		return notify.NewLog(logger), func() {}, nil
	}
}

// newLimiter returns a Redis limiter when a client is given, an in-process
// one otherwise, and nil when the rule disables throttling.
func newLimiter(rule ratelimit.Rule, client *goredis.Client) (ratelimit.Limiter, error) {
	if !rule.Valid() {
		return nil, nil
	}
	if client != nil {
		l, err := ratelimit.NewRedis(client, rule, rateLimitPrefix)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	l, err := ratelimit.NewLocal(rule)
	if err != nil {
		return nil, err
	}
	return l, nil
}

type redisPinger struct {
	client *goredis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
