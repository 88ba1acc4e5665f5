package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"mercator-hq/tutor/pkg/completion"
	"mercator-hq/tutor/pkg/completion/openai"
	"mercator-hq/tutor/pkg/config"
	"mercator-hq/tutor/pkg/content"
	"mercator-hq/tutor/pkg/conversation"
	"mercator-hq/tutor/pkg/database"
	"mercator-hq/tutor/pkg/limits/ratelimit"
	"mercator-hq/tutor/pkg/limits/storage"
	"mercator-hq/tutor/pkg/resilience"
	"mercator-hq/tutor/pkg/server"
	"mercator-hq/tutor/pkg/session"
	"mercator-hq/tutor/pkg/telemetry/health"
	"mercator-hq/tutor/pkg/telemetry/logging"
	"mercator-hq/tutor/pkg/telemetry/metrics"
	"mercator-hq/tutor/pkg/telemetry/tracing"
)

// app holds every long-lived component of a running tutor server.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	level     *slog.LevelVar
	collector *metrics.Collector
	tracer    *tracing.Tracer

	rateStore    storage.Store
	cache        content.Cache
	limiter      *ratelimit.Limiter
	tiers        *ratelimit.StaticTiers
	sessions     *session.Manager
	orchestrator *content.Orchestrator[completion.Reply]
	retention    *content.RetentionScheduler
	breaker      *resilience.CircuitBreaker
	chatModel    *openai.ChatModel
	conversation *conversation.Service
	health       *health.Checker
	server       *server.Server

	closers []io.Closer
}

// newLogger builds the process logger. level receives the configured level
// so reloads can change it.
func newLogger(cfg config.LoggingConfig, level *slog.LevelVar, w io.Writer) (*slog.Logger, error) {
	return logging.New(logging.Config{
		Level:     cfg.Level,
		Format:    cfg.Format,
		AddSource: cfg.AddSource,
		RedactPII: cfg.RedactPII,
		Writer:    w,
		LevelVar:  level,
	})
}

// newApp builds the component graph from cfg. On error, everything opened
// so far is closed.
func newApp(cfg *config.Config, logger *slog.Logger, level *slog.LevelVar) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger, level: level}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if cfg.Telemetry.Metrics.Enabled {
		a.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	if a.tracer, err = tracing.New(&cfg.Telemetry.Tracing, Version); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if a.rateStore, err = openRateStore(cfg, logger); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.rateStore)

	a.limiter = ratelimit.NewLimiter(a.rateStore, ratelimit.Config{
		DefaultLimit:         cfg.RateLimit.DefaultLimit,
		DefaultWindow:        cfg.RateLimit.DefaultWindow,
		LocalMaxEntries:      cfg.RateLimit.LocalMaxEntries,
		LocalCleanupInterval: cfg.RateLimit.LocalCleanupInterval,
	}, logger, a.rateLimitMetrics())
	a.closers = append(a.closers, a.limiter)

	var tiers ratelimit.TierResolver
	if len(cfg.RateLimit.Tiers) > 0 {
		defaultTier, table := tierTable(cfg.RateLimit)
		if a.tiers, err = ratelimit.NewStaticTiers(defaultTier, table, cfg.RateLimit.Owners); err != nil {
			return nil, fmt.Errorf("failed to build rate limit tiers: %w", err)
		}
		tiers = a.tiers
	}

	a.sessions = session.NewManager(session.Config{
		MaxMessages:    cfg.Session.MaxMessages,
		SessionTimeout: cfg.Session.Timeout,
		SweepInterval:  cfg.Session.SweepInterval,
	}, nil, logger, a.sessionMetrics(), nil)

	if a.cache, err = openCache(cfg, logger); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.cache)

	a.orchestrator = content.NewOrchestrator[completion.Reply](
		a.cache,
		conversation.NewDefaultReplies(),
		content.Config{MaxAge: cfg.Content.MaxAge, Retention: cfg.Content.Retention},
		nil,
		logger,
		a.contentMetrics(),
	)
	a.retention = content.NewRetentionScheduler(a.orchestrator, cfg.Content.PurgeSchedule, logger)

	a.breaker = resilience.NewCircuitBreaker("completion", resilience.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
		Retry: resilience.Options{
			MaxAttempts:       cfg.Retry.MaxAttempts,
			InitialDelay:      cfg.Retry.InitialDelay,
			MaxDelay:          cfg.Retry.MaxDelay,
			BackoffMultiplier: cfg.Retry.BackoffMultiplier,
			Jitter:            cfg.Retry.Jitter,
			Timeout:           cfg.Retry.AttemptTimeout,
			OnRetry:           a.onRetry,
		},
		OnStateChange: a.onBreakerStateChange,
	}, logger)

	if a.chatModel, err = openai.NewChatModel(openai.Config{
		BaseURL: cfg.Completion.BaseURL,
		APIKey:  cfg.Completion.APIKey,
		Model:   cfg.Completion.Model,
		Timeout: cfg.Completion.Timeout,
	}, logger); err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	a.closers = append(a.closers, a.chatModel)

	completer, err := completion.NewClient(a.chatModel, completion.Config{
		SystemPrompt: cfg.Completion.SystemPrompt,
		HistoryLimit: cfg.Completion.HistoryLimit,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}

	if a.conversation, err = conversation.NewService(conversation.Deps{
		Sessions:     a.sessions,
		Limiter:      a.limiter,
		Orchestrator: a.orchestrator,
		Breaker:      a.breaker,
		Completer:    completer,
		Tiers:        tiers,
	}, conversation.Config{
		HistorySize: cfg.Completion.HistoryLimit,
		MaxInFlight: cfg.RateLimit.MaxInFlight,
	}, logger); err != nil {
		return nil, err
	}

	// The limiter and the orchestrator keep serving when their stores fail,
	// so those checks only degrade readiness.
	a.health = health.New(5 * time.Second)
	a.health.Register("ratelimit_store", health.Degradable, health.PingCheck(a.rateStore))
	a.health.Register("content_cache", health.Degradable, health.PingCheck(a.cache))
	a.health.Register("completion_breaker", health.Degradable, health.BreakerCheck(a.breaker))

	deps := server.Deps{
		Conversation: a.conversation,
		Sessions:     a.sessions,
		Limiter:      a.limiter,
		Health:       a.health,
		Tracing:      a.tracer.Enabled(),
		Build:        server.BuildInfo{Version: Version, Commit: GitCommit, BuildTime: BuildDate},
	}
	if a.collector != nil {
		deps.Metrics = a.collector
		deps.MetricsHandler = a.collector.Handler()
		deps.MetricsPath = cfg.Telemetry.Metrics.Path
	}
	if a.server, err = server.New(&cfg.Server, deps, logger); err != nil {
		return nil, err
	}

	return a, nil
}

// Close releases stores and connections in reverse order of creation and
// flushes pending spans.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// applyReload applies the settings that can change without a restart: the
// log level, the rate limit defaults and the rate limit tiers.
func (a *app) applyReload(cfg *config.Config) {
	if lvl, err := logging.ParseLevel(cfg.Telemetry.Logging.Level); err == nil && a.level != nil {
		a.level.Set(lvl)
	}

	if err := a.limiter.SetDefaults(cfg.RateLimit.DefaultLimit, cfg.RateLimit.DefaultWindow); err != nil {
		a.logger.Warn("rate limit defaults not reloaded", "error", err)
	}

	if a.tiers != nil && len(cfg.RateLimit.Tiers) > 0 {
		defaultTier, table := tierTable(cfg.RateLimit)
		if err := a.tiers.Update(defaultTier, table, cfg.RateLimit.Owners); err != nil {
			a.logger.Warn("rate limit tiers not reloaded", "error", err)
			return
		}
	}

	a.logger.Info("configuration reloaded",
		"log_level", cfg.Telemetry.Logging.Level,
		"default_limit", cfg.RateLimit.DefaultLimit,
		"default_window", cfg.RateLimit.DefaultWindow,
		"tiers", len(cfg.RateLimit.Tiers),
	)
}

func (a *app) onRetry(attempt int, err error, delay time.Duration) {
	a.logger.Debug("retrying completion", "attempt", attempt, "delay", delay, "error", err)
	if a.collector != nil {
		a.collector.RecordRetry("completion", delay)
	}
}

func (a *app) onBreakerStateChange(name string, from, to resilience.State) {
	a.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	if a.collector != nil {
		a.collector.RecordBreakerTransition(name, from.String(), to.String())
	}
}

// The per-component Metrics interfaces must stay nil, not a typed nil
// pointer, when metrics are disabled.

func (a *app) rateLimitMetrics() ratelimit.Metrics {
	if a.collector == nil {
		return nil
	}
	return a.collector
}

func (a *app) sessionMetrics() session.Metrics {
	if a.collector == nil {
		return nil
	}
	return a.collector
}

func (a *app) contentMetrics() content.Metrics {
	if a.collector == nil {
		return nil
	}
	return a.collector
}

// openRateStore opens the shared rate limit store named by the storage
// configuration.
func openRateStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryStore(storage.LocalCacheConfig{
			MaxEntries:      cfg.RateLimit.LocalMaxEntries,
			CleanupInterval: cfg.RateLimit.LocalCleanupInterval,
		}), nil
	default:
		store, err := storage.NewSQLiteStore(storage.SQLiteStoreConfig{
			DB:                  dbConfig(cfg),
			MaintenanceInterval: cfg.Storage.MaintenanceInterval,
			Logger:              logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open rate limit store: %w", err)
		}
		return store, nil
	}
}

// openCache opens the reply cache. The SQLite cache shares the storage
// database file.
func openCache(cfg *config.Config, logger *slog.Logger) (content.Cache, error) {
	switch cfg.Content.Backend {
	case "memory":
		return content.NewMemoryCache(cfg.Content.MaxEntries), nil
	default:
		cache, err := content.NewSQLiteCache(content.SQLiteCacheConfig{
			DB:         dbConfig(cfg),
			MaxEntries: cfg.Content.MaxEntries,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open content cache: %w", err)
		}
		return cache, nil
	}
}

func dbConfig(cfg *config.Config) database.Config {
	return database.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout,
	}
}

// defaultTierName names the tier synthesized from default_limit and
// default_window when tiers are configured without a default_tier.
const defaultTierName = "default"

// tierTable converts the configured tiers and returns the name of the
// tier applied to unassigned owners.
func tierTable(rl config.RateLimitConfig) (string, map[string]ratelimit.Tier) {
	out := make(map[string]ratelimit.Tier, len(rl.Tiers)+1)
	for name, t := range rl.Tiers {
		out[name] = ratelimit.Tier{Limit: t.Limit, Window: t.Window}
	}

	defaultTier := rl.DefaultTier
	if defaultTier == "" {
		defaultTier = defaultTierName
		if _, ok := out[defaultTier]; !ok {
			out[defaultTier] = ratelimit.Tier{Limit: rl.DefaultLimit, Window: rl.DefaultWindow}
		}
	}
	return defaultTier, out
}
