package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/dropsched/internal/auth"
	"github.com/example/dropsched/internal/broadcast"
	"github.com/example/dropsched/internal/community"
	"github.com/example/dropsched/internal/config"
	"github.com/example/dropsched/internal/db"
	"github.com/example/dropsched/internal/infrastructure/memory"
	"github.com/example/dropsched/internal/infrastructure/metrics"
	"github.com/example/dropsched/internal/infrastructure/postgres"
	"github.com/example/dropsched/internal/infrastructure/redisbus"
	"github.com/example/dropsched/internal/logging"
	"github.com/example/dropsched/internal/migrate"
	"github.com/example/dropsched/internal/plans"
	"github.com/example/dropsched/internal/promo"
	"github.com/example/dropsched/internal/randy"
	"github.com/example/dropsched/internal/settings"
)

// app holds the wired services shared by the subcommands.
type app struct {
	cfg     config.Config
	logger  zerolog.Logger
	nodeID  string
	db      *db.DB
	bus     *redisbus.Bus
	metrics *metrics.Metrics

	plans     *plans.Service
	promo     *promo.Service
	randy     *randy.Service
	settings  *settings.Service
	auth      *auth.Store
	community *community.Service
	broadcast *broadcast.Service
}

type appOptions struct {
	migrate bool
	// events connects the Redis bus when REDIS_ADDR is set.
	events bool
}

func openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:     cfg,
		logger:  logging.Setup(cfg.Environment, cfg.LogLevel),
		nodeID:  uuid.NewString(),
		metrics: metrics.New(),
	}

	var (
		planStore     plans.Store
		promoStore    promo.Store
		settingsStore settings.Store
		users         auth.Users
		members       community.Store
	)
	switch cfg.Store {
	case "memory":
		a.logger.Warn().Msg("using in-memory store; data is lost on exit")
		m := memory.NewStore()
		planStore, promoStore, settingsStore, users, members = m, m, m, m, m
	default:
		d, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := d.Ping(ctx); err != nil {
			d.Close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		if opts.migrate {
			if err := migrate.Up(ctx, d, a.logger); err != nil {
				d.Close()
				return nil, err
			}
		}
		a.db = d
		planStore = postgres.NewPlanRepo(d)
		promoStore = postgres.NewPromoRepo(d)
		settingsStore = postgres.NewSettingsRepo(d)
		users = postgres.NewUserRepo(d)
		members = postgres.NewCommunityRepo(d)
	}

	a.plans = plans.New(planStore, a.logger)
	a.plans.SetRecorder(a.metrics)

	if opts.events && cfg.RedisAddr != "" {
		bus, err := redisbus.New(ctx, redisbus.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.EventsChannel,
		}, a.nodeID, a.logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.bus = bus
		a.plans.SetPublisher(bus)
	}

	promoScope, err := plans.ParseScope(cfg.PromoClaimScope)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("PROMO_CLAIM_SCOPE: %w", err)
	}
	randyScope, err := plans.ParseScope(cfg.RandyClaimScope)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("RANDY_CLAIM_SCOPE: %w", err)
	}

	a.settings = settings.NewService(settingsStore)
	a.promo = promo.NewService(promoStore, a.plans, a.settings, promoScope, a.logger)
	a.randy = randy.NewService(a.plans, randyScope, a.logger)
	a.auth = auth.NewStore(users, cfg.CookieHashKey, cfg.CookieBlockKey)
	a.community = community.NewService(members)
	a.broadcast = broadcast.NewService(a.plans, a.community, a.logger)

	a.logger.Debug().Str("store", cfg.Store).Str("node_id", a.nodeID).Bool("events", a.bus != nil).Msg("app ready")
	return a, nil
}

func (a *app) Close() {
	if a.bus != nil {
		_ = a.bus.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
