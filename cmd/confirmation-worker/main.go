package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hackgods/slot-booking/internal/config"
	"github.com/hackgods/slot-booking/internal/logging"
	"github.com/hackgods/slot-booking/internal/notify"
)

// confirmation-worker drains the confirmation queue and delivers each
// confirmation to the patient and the doctor.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Env).With().Str("service", "confirmation-worker").Logger()
	if cfg.AMQPURL == "" {
		logger.Fatal().Msg("AMQP_URL is required")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, ch, err := notify.SetupConn(cfg.AMQPURL, cfg.NotifyExchange, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("rabbitmq setup")
	}
	defer conn.Close()
	defer ch.Close()

	logger.Info().
		Str("exchange", cfg.NotifyExchange).
		Str("queue", cfg.NotifyQueue).
		Msg("confirmation-worker starting up")

	sink := notify.NewLogSink(logger)
	consumer := notify.NewConsumer(ch, cfg.NotifyExchange, cfg.NotifyQueue, logger)
	if err := consumer.Run(rootCtx, sink.Notify); err != nil {
		logger.Error().Err(err).Msg("consumer stopped")
		return
	}
	logger.Info().Msg("shutdown signal received, stopping confirmation worker")
}
