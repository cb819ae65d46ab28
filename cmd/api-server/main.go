package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/slot-booking/internal/api"
	"github.com/hackgods/slot-booking/internal/appointment"
	"github.com/hackgods/slot-booking/internal/config"
	"github.com/hackgods/slot-booking/internal/db"
	"github.com/hackgods/slot-booking/internal/logging"
	"github.com/hackgods/slot-booking/internal/notify"
	redisclient "github.com/hackgods/slot-booking/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Env).With().Str("service", "api-server").Logger()
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api-server stopped")
	}
}

type stores struct {
	slots        appointment.SlotStore
	appointments appointment.AppointmentStore
	catalog      appointment.CatalogStore
}

func run(cfg config.Config, logger zerolog.Logger) error {
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store", cfg.StoreBackend).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		st     stores
		checks []api.DependencyCheck
	)

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
			MaxConns: cfg.PGMaxConns,
			MinConns: cfg.PGMinConns,
		})
		if err != nil {
			cancelPg()
			return fmt.Errorf("postgres connection: %w", err)
		}
		applied, err := db.Migrate(pgCtx, pgPool)
		cancelPg()
		if err != nil {
			pgPool.Close()
			return fmt.Errorf("migrate: %w", err)
		}
		defer pgPool.Close()
		logger.Info().Int("migrations_applied", applied).Msg("connected to Postgres")

		repo := appointment.NewPgRepository(pgPool)
		st = stores{slots: repo, appointments: repo, catalog: repo}
		checks = append(checks, api.DependencyCheck{Name: "postgres", Critical: true, Check: pgPool.Ping})
	default:
		mem := appointment.NewMemorySlotStore()
		st = stores{slots: mem, appointments: appointment.NewMemoryAppointmentStore(), catalog: mem}
		logger.Warn().Msg("using in-memory store, data is lost on restart")
	}

	if cfg.SlotCacheSize > 0 {
		cached, err := appointment.NewCachedSlotStore(st.slots, cfg.SlotCacheSize)
		if err != nil {
			return fmt.Errorf("slot cache: %w", err)
		}
		st.slots = cached
	}

	var locker redisclient.Locker
	if cfg.RedisURL != "" {
		rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection: %w", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		locker = redisclient.NewSlotLocker(rdb, cfg.LockTTL)
		checks = append(checks, api.DependencyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		logger.Info().Dur("lock_ttl", cfg.LockTTL).Msg("connected to Redis")
	}

	var sink appointment.NotificationSink = notify.NewLogSink(logger)
	if cfg.AMQPURL != "" {
		conn, ch, err := notify.SetupConn(cfg.AMQPURL, cfg.NotifyExchange, logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		defer ch.Close()
		sink = notify.NewPublisher(ch, cfg.NotifyExchange)
		checks = append(checks, api.DependencyCheck{
			Name: "rabbitmq",
			Check: func(context.Context) error {
				if conn.IsClosed() {
					return errors.New("connection closed")
				}
				return nil
			},
		})
		logger.Info().Str("exchange", cfg.NotifyExchange).Msg("connected to RabbitMQ")
	}
	async := notify.NewAsyncSink(sink, cfg.NotifyBuffer, logger)

	engine := appointment.NewBookingEngine(st.slots, st.appointments, async, locker, logger)
	lifecycle := appointment.NewLifecycleManager(st.appointments, logger)
	catalog := appointment.NewCatalog(st.catalog)

	srv := &http.Server{
		Addr: net.JoinHostPort("", cfg.HTTPPort),
		Handler: api.NewRouter(api.RouterConfig{
			Booker:         engine,
			Lifecycle:      lifecycle,
			Catalog:        catalog,
			Checks:         checks,
			Logger:         logger,
			RequestTimeout: cfg.RequestTimeout,
			Env:            cfg.Env,
			Version:        cfg.Version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-rootCtx.Done():
	}

	logger.Info().Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if err := async.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("notification queue not drained")
	}
	return nil
}
