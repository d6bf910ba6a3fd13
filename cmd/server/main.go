// Command server runs the referral intake service: the referral lifecycle
// engine, the access-key engine, and their HTTP façade. Store backends are
// chosen by configuration; with no POSTGRES_URL or REDIS_URL the whole
// service runs in memory, which is the local development mode.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	accesskeyHandler "referralintake/internal/accesskey/handler"
	accesskeyMetrics "referralintake/internal/accesskey/metrics"
	accesskeyService "referralintake/internal/accesskey/service"
	accesskeyStore "referralintake/internal/accesskey/store"
	"referralintake/internal/audit"
	"referralintake/internal/platform/config"
	"referralintake/internal/platform/httpserver"
	"referralintake/internal/platform/logger"
	"referralintake/internal/platform/postgres"
	platformRedis "referralintake/internal/platform/redis"
	"referralintake/internal/platform/token"
	providerModels "referralintake/internal/provider/models"
	providerStore "referralintake/internal/provider/store"
	referralHandler "referralintake/internal/referral/handler"
	referralMetrics "referralintake/internal/referral/metrics"
	referralService "referralintake/internal/referral/service"
	referralStore "referralintake/internal/referral/store"
	httptransport "referralintake/internal/transport/http"
	"referralintake/pkg/keycode"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]httptransport.HealthChecker{}

	// Stores: durable when configured, in-memory otherwise.
	var (
		referrals referralService.Store  = referralStore.NewInMemory()
		providers providerStore.Store    = providerStore.NewInMemory()
		keys      accesskeyService.Store = accesskeyStore.NewInMemory()
	)
	if cfg.Postgres.URL == "" {
		// The in-memory catalogue starts empty; seed it so provider
		// selection works in local development.
		if err := seedProviders(ctx, providers); err != nil {
			log.Error("provider seed failed", "error", err.Error())
			os.Exit(1)
		}
	}
	if cfg.Postgres.URL != "" {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			log.Error("postgres setup failed", "error", err.Error())
			os.Exit(1)
		}
		defer db.Close()
		referrals = referralStore.NewPostgres(db)
		providers = providerStore.NewPostgres(db)
		checks["postgres"] = dbHealth{db: db}
	}
	if cfg.Redis.URL != "" {
		redisClient, err := platformRedis.New(cfg.Redis)
		if err != nil {
			log.Error("redis setup failed", "error", err.Error())
			os.Exit(1)
		}
		defer redisClient.Close()
		keys = accesskeyStore.NewRedis(redisClient.Client)
		checks["redis"] = redisClient
	}

	// Audit pipeline: a Kafka publisher when brokers are configured,
	// otherwise an async worker draining into the in-process store.
	var (
		publisher audit.Publisher
		worker    *audit.Worker
	)
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := audit.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Error("kafka setup failed", "error", err.Error())
			os.Exit(1)
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	} else {
		inbox := make(chan audit.Event, 256)
		worker = audit.NewWorker(audit.NewInMemoryStore(), inbox)
		publisher = audit.NewAsyncPublisher(inbox)
	}

	// Services.
	referralSvc, err := referralService.New(referrals, providers,
		referralService.WithLogger(log),
		referralService.WithAuditPublisher(publisher),
		referralService.WithMetrics(referralMetrics.New()),
		referralService.WithConfig(referralService.Config{
			MinDaysSinceProviderSelectionForReuse: cfg.Referral.CoolDownDays,
		}),
	)
	if err != nil {
		log.Error("referral service setup failed", "error", err.Error())
		os.Exit(1)
	}

	accessKeySvc, err := accesskeyService.New(keys, keycode.New(),
		accesskeyService.WithLogger(log),
		accesskeyService.WithAuditPublisher(publisher),
		accesskeyService.WithMetrics(accesskeyMetrics.New()),
		accesskeyService.WithConfig(accesskeyService.Config{
			MaxActiveAccessKeys: cfg.AccessKey.MaxActiveKeys,
			MaxAttempts:         cfg.AccessKey.MaxAttempts,
			ExpireAfter:         cfg.AccessKey.ExpireAfter,
			CodeLength:          cfg.AccessKey.CodeLength,
		}),
	)
	if err != nil {
		log.Error("access key service setup failed", "error", err.Error())
		os.Exit(1)
	}

	tokens := token.NewService(cfg.Token.SigningKey, cfg.Token.Issuer, cfg.Token.TTL)

	var akOpts []accesskeyHandler.Option
	if cfg.AccessKey.EchoCode {
		akOpts = append(akOpts, accesskeyHandler.WithEchoCode())
	}

	router := httptransport.NewRouter(checks,
		referralHandler.New(referralSvc, log, tokens),
		accesskeyHandler.New(accessKeySvc, tokens, log, nil, akOpts...),
	)
	srv := httpserver.New(cfg.Server.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)

	if worker != nil {
		group.Go(func() error {
			return worker.Run(groupCtx)
		})
	}

	group.Go(func() error {
		log.Info("starting referral intake", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", "error", err.Error())
		os.Exit(1)
	}
}

func seedProviders(ctx context.Context, store providerStore.Store) error {
	now := time.Now().UTC()
	for _, spec := range []struct {
		name              string
		low, medium, high bool
	}{
		{"Oviva", true, true, false},
		{"Second Nature", false, true, true},
		{"Xyla Health", true, true, true},
	} {
		p, err := providerModels.NewProvider(spec.name, spec.low, spec.medium, spec.high, now)
		if err != nil {
			return err
		}
		if err := store.Save(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

type dbHealth struct {
	db interface {
		PingContext(ctx context.Context) error
	}
}

func (h dbHealth) Health(ctx context.Context) error {
	return h.db.PingContext(ctx)
}
