package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"rwaledger/internal/adapters/access"
	chadapter "rwaledger/internal/adapters/clickhouse"
	"rwaledger/internal/adapters/config"
	"rwaledger/internal/adapters/errors/noop"
	"rwaledger/internal/adapters/errors/sentry"
	"rwaledger/internal/adapters/kafka"
	pgadapter "rwaledger/internal/adapters/postgres"
	"rwaledger/internal/adapters/redis"
	simulated "rwaledger/internal/adapters/settlement"
	"rwaledger/internal/adapters/solana"
	"rwaledger/internal/adapters/telegram"
	"rwaledger/internal/api"
	"rwaledger/internal/api/health"
	"rwaledger/internal/api/rest"
	"rwaledger/internal/consumers"
	"rwaledger/internal/domain/ledger"
	domainsettlement "rwaledger/internal/domain/settlement"
	"rwaledger/internal/events"
	"rwaledger/internal/metrics"
	"rwaledger/internal/repository/postgres"
	"rwaledger/internal/services/dividend"
	"rwaledger/internal/services/holdings"
	"rwaledger/internal/services/investment"
	poolsvc "rwaledger/internal/services/pool"
	"rwaledger/internal/services/portfolio"
	"rwaledger/internal/services/settlement"
	"rwaledger/internal/services/transfer"
	"rwaledger/internal/workers"
	ledgerworkers "rwaledger/internal/workers/ledger"
	"rwaledger/pkg/auth"
	chpkg "rwaledger/pkg/clickhouse"
	"rwaledger/pkg/errors"
	"rwaledger/pkg/logger"
)

// infra holds connections and the adapters built on them
type infra struct {
	postgres   *pgadapter.Client
	redis      *redis.Client
	clickhouse *chadapter.Client
	producer   *kafka.Producer

	locker    ledger.Locker
	cache     ledger.Cache
	publisher ledger.EventPublisher
	adapter   domainsettlement.Adapter
	alerter   settlement.Alerter
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := initLogger(cfg); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	log.Infof("Starting %s %s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inf, err := initInfra(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize infrastructure: %v", err)
	}
	defer inf.close(log)

	tx := postgres.NewTransactor(inf.postgres.DB())
	l := holdings.NewLedger(tx, cfg.Ledger.ConflictRetries, log)
	authz := access.NewStatic(cfg.Access)
	dispatcher := settlement.NewDispatcher(tx, inf.adapter, inf.locker, inf.publisher, inf.alerter, settlement.Config{
		Timeout:         cfg.Ledger.SettlementTimeout,
		MaxAttempts:     cfg.Ledger.SettlementMaxAttempts,
		ConflictRetries: cfg.Ledger.ConflictRetries,
		StaleAfter:      cfg.Workers.ReconcileStaleAfter,
	}, log)

	services := rest.Services{
		Pools: poolsvc.NewService(l, inf.adapter, authz, inf.locker, inf.cache, inf.publisher, poolsvc.Config{
			LaunchLockTTL:     cfg.Ledger.LaunchLockTTL,
			StatsCacheTTL:     cfg.Ledger.StatsCacheTTL,
			SettlementTimeout: cfg.Ledger.SettlementTimeout,
		}, log),
		Investments: investment.NewService(l, dispatcher, inf.cache, inf.publisher, log),
		Transfers:   transfer.NewService(l, dispatcher, authz, inf.cache, inf.publisher, log),
		Dividends: dividend.NewService(l, dispatcher, authz, inf.locker, inf.cache, inf.publisher, dividend.Config{
			CurrencyScale:      cfg.Ledger.CurrencyScale,
			ExecuteParallelism: cfg.Ledger.ExecuteParallelism,
		}, log),
		Portfolio:   portfolio.NewService(tx, log),
		Settlements: dispatcher,
		Auth:        authz,
	}
	if inf.clickhouse != nil {
		services.Journal = inf.clickhouse
	}

	collector := metrics.NewLedgerCollector(log, inf.postgres.DB())
	metrics.RegisterLedgerCollector(collector)

	scheduler := initWorkers(cfg, l, dispatcher, tx, inf, log)

	healthHandler := health.New(log, cfg.App.Name, cfg.App.Version).Require("postgres", inf.postgres)
	if inf.redis != nil {
		healthHandler.Require("redis", inf.redis)
	}
	if inf.clickhouse != nil {
		healthHandler.Optional("clickhouse", inf.clickhouse)
	}
	healthHandler.Require("workers", scheduler.Checker(cfg.Workers.MaxFailures))

	apiOpts, err := apiOptions(cfg, log)
	if err != nil {
		log.Fatalf("Invalid auth configuration: %v", err)
	}

	server := api.NewServer(api.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		ServiceName:  cfg.App.Name,
		Version:      cfg.App.Version,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, healthHandler, rest.NewHandler(services, log, apiOpts...).Routes(), log)

	g, gctx := errgroup.WithContext(ctx)

	if err := scheduler.Start(gctx); err != nil {
		log.Fatalf("Failed to start workers: %v", err)
	}

	var journal *chpkg.BatchWriter[ledger.Event]
	if inf.clickhouse != nil && cfg.Kafka.Enabled() {
		journal = startJournal(gctx, g, cfg, inf.clickhouse, log)
	}

	g.Go(server.Start)

	log.Info("System initialized successfully")

	<-gctx.Done()
	log.Info("Shutting down...")
	shutdown(server, scheduler, journal, errorTracker, log)

	if err := g.Wait(); err != nil {
		log.Errorw("Component exited with error", "error", err)
	}
	log.Info("Shutdown complete")
}

// loadConfig loads application configuration from environment
func loadConfig() (*config.Config, error) {
	return config.Load()
}

// initLogger initializes structured logging
func initLogger(cfg *config.Config) error {
	return logger.Init(cfg.App.LogLevel, cfg.App.Env)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// initInfra connects PostgreSQL and the optional backends. Optional backends
// left unconfigured fall back to in-process implementations.
func initInfra(ctx context.Context, cfg *config.Config, log *logger.Logger) (*infra, error) {
	inf := &infra{}

	pg, err := pgadapter.NewClient(ctx, cfg.Postgres)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	inf.postgres = pg
	if cfg.Postgres.Migrate {
		n, err := pg.Migrate(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "migrate postgres")
		}
		log.Infow("PostgreSQL migrations applied", "count", n)
	}

	if cfg.Redis.Enabled() {
		rc, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, errors.Wrap(err, "connect redis")
		}
		inf.redis, inf.locker, inf.cache = rc, rc, rc
	} else {
		log.Warn("Redis not configured, using in-process locks and cache (single instance only)")
		inf.locker, inf.cache = redis.NewLocalLocker(), redis.NewLocalCache()
	}

	if cfg.Kafka.Enabled() {
		inf.producer = kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
		inf.publisher = events.NewPublisher(inf.producer, log.Component("events"))
	} else {
		log.Info("Kafka not configured, ledger events are not published")
		inf.publisher = events.Noop{}
	}

	if cfg.ClickHouse.Enabled() {
		ch, err := chadapter.NewClient(ctx, cfg.ClickHouse)
		if err != nil {
			return nil, errors.Wrap(err, "connect clickhouse")
		}
		if err := ch.EnsureSchema(ctx); err != nil {
			return nil, errors.Wrap(err, "clickhouse schema")
		}
		inf.clickhouse = ch
	}

	if cfg.Solana.Enabled() {
		sol, err := solana.New(cfg.Solana)
		if err != nil {
			return nil, errors.Wrap(err, "solana adapter")
		}
		inf.adapter = sol
	} else {
		log.Warn("Solana RPC not configured, using the simulated settlement adapter")
		inf.adapter = simulated.NewSimulated()
	}

	if cfg.Telegram.Enabled() {
		alerter, err := telegram.NewAlerter(telegram.Config{
			Token:  cfg.Telegram.BotToken,
			ChatID: cfg.Telegram.AlertChatID,
		}, log)
		if err != nil {
			log.Warnf("Telegram alerts disabled: %v", err)
		} else {
			inf.alerter = alerter
		}
	}

	return inf, nil
}

func (inf *infra) close(log *logger.Logger) {
	closers := map[string]func() error{"postgres": inf.postgres.Close}
	if inf.redis != nil {
		closers["redis"] = inf.redis.Close
	}
	if inf.clickhouse != nil {
		closers["clickhouse"] = inf.clickhouse.Close
	}
	if inf.producer != nil {
		closers["kafka_producer"] = inf.producer.Close
	}
	for name, fn := range closers {
		if err := fn(); err != nil {
			log.Warnw("Failed to close connection", "component", name, "error", err)
		}
	}
}

// apiOptions turns on bearer token auth when a secret is configured
func apiOptions(cfg *config.Config, log *logger.Logger) ([]rest.Option, error) {
	if !cfg.Auth.Enabled() {
		log.Warn("AUTH_JWT_SECRET not set, trusting the X-Actor-ID gateway header")
		return nil, nil
	}
	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTDuration)
	if err != nil {
		return nil, errors.Wrap(err, "AUTH_JWT_SECRET")
	}
	return []rest.Option{rest.WithTokenAuth(tokens)}, nil
}

// initWorkers registers the background workers
func initWorkers(cfg *config.Config, l *holdings.Ledger, d *settlement.Dispatcher, tx ledger.Transactor, inf *infra, log *logger.Logger) *workers.Scheduler {
	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(ledgerworkers.NewReconciler(d, tx, inf.locker, ledgerworkers.ReconcilerConfig{
		Interval:   cfg.Workers.ReconcileInterval,
		StaleAfter: cfg.Workers.ReconcileStaleAfter,
		BatchSize:  cfg.Workers.ReconcileBatchSize,
		Enabled:    cfg.Workers.ReconcileEnabled,
	}))
	scheduler.RegisterWorker(ledgerworkers.NewRevaluer(l, inf.cache, cfg.Workers.RevalueInterval, cfg.Workers.RevalueEnabled))
	log.Infow("Workers registered", "count", len(scheduler.GetWorkers()))
	return scheduler
}

// startJournal copies published events from Kafka into ClickHouse
func startJournal(ctx context.Context, g *errgroup.Group, cfg *config.Config, ch *chadapter.Client, log *logger.Logger) *chpkg.BatchWriter[ledger.Event] {
	writer := chpkg.NewBatchWriter(chpkg.BatchWriterConfig[ledger.Event]{
		FlushFunc: ch.InsertEvents,
		TableName: "ledger_events",
		OnFlush:   metrics.RecordJournalFlush,
	})
	writer.Start(ctx)

	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID + "-journal",
		Topics:  kafka.AllTopics,
	})
	jc := consumers.NewJournalConsumer(consumer, writer, log.Component("journal_consumer"))

	g.Go(func() error {
		defer func() { _ = consumer.Close() }()
		return jc.Start(ctx)
	})
	return writer
}

// shutdown stops components in reverse dependency order
func shutdown(server *api.Server, scheduler *workers.Scheduler, journal *chpkg.BatchWriter[ledger.Event], tracker errors.Tracker, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := server.Shutdown(ctx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := scheduler.Stop(); err != nil {
			log.Errorw("Worker shutdown failed", "error", err)
		}
	}()
	wg.Wait()

	if journal != nil {
		if err := journal.Stop(ctx); err != nil {
			log.Warnw("Journal flush failed", "error", err)
		}
	}

	if err := tracker.Flush(ctx); err != nil {
		log.Warnf("Failed to flush error tracker: %v", err)
	}
}
