package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/mcdev12/livequiz/go/internal/quiz/config"
	"github.com/mcdev12/livequiz/go/internal/quiz/gateway"
	"github.com/mcdev12/livequiz/go/internal/quiz/journal"
	"github.com/mcdev12/livequiz/go/internal/quiz/processor"
	"github.com/mcdev12/livequiz/go/internal/quiz/relay"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cmd := &cli.Command{
		Name:  "quiz-gateway",
		Usage: "serve a live quiz session over websockets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: config.DefaultPath,
				Usage: "path to the YAML config file (missing file is ignored)",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "listen address, overrides server.listen_addr",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("quiz gateway failed")
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := setupLogging(cfg.Log); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clock := clockwork.NewRealClock()

	// Optional answer journal
	var recorder processor.AnswerRecorder
	if cfg.Database.URL != "" {
		pool, err := journal.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		answers := journal.New(pool, cfg.Database.JournalBuffer, clock)
		if err := answers.EnsureSchema(ctx); err != nil {
			return err
		}
		go func() {
			if err := answers.Run(ctx); err != nil {
				log.Error().Err(err).Msg("answer journal failed")
			}
		}()
		recorder = answers
	} else {
		log.Info().Msg("database url not set, answer journal disabled")
	}

	gatewayService := gateway.NewService(gatewayConfig(cfg, clock), recorder)

	// Optional NATS event relay
	if cfg.NATS.URL != "" {
		jsConfig := relay.DefaultJetStreamConfig()
		jsConfig.URL = cfg.NATS.URL
		jsConfig.StreamName = cfg.NATS.Stream
		jsConfig.SubjectPrefix = cfg.NATS.SubjectPrefix

		publisher, err := relay.NewJetStreamPublisher(ctx, jsConfig)
		if err != nil {
			return err
		}
		defer publisher.Close()

		eventRelay := relay.New(gatewayService.Events(), publisher, cfg.NATS.SubjectPrefix, clock)
		go func() {
			if err := eventRelay.Run(ctx); err != nil {
				log.Error().Err(err).Msg("event relay failed")
			}
		}()
	} else {
		log.Info().Msg("nats url not set, event relay disabled")
	}

	server := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      gatewayService.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a failed listener
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-serverErr:
		gatewayService.Stop()
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Websocket connections are hijacked, so Shutdown does not wait for them
	gatewayService.Stop()
	cancel()

	log.Info().Msg("quiz gateway shutdown complete")
	return nil
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cmd.IsSet("listen") {
		cfg.Server.ListenAddr = cmd.String("listen")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg config.LogConfig) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	switch cfg.Format {
	case "console":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	case "json":
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return nil
}

func gatewayConfig(cfg *config.Config, clock clockwork.Clock) gateway.Config {
	connConfig := gateway.DefaultConnectionConfig()
	connConfig.ReadBufferSize = cfg.WebSocket.ReadBufferSize
	connConfig.WriteBufferSize = cfg.WebSocket.WriteBufferSize
	connConfig.Transport = gateway.TransportConfig{
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		PingInterval:   cfg.WebSocket.PingInterval,
		PongWait:       cfg.WebSocket.PongWait,
	}

	return gateway.Config{
		ConnectionConfig: connConfig,
		HubCapacity:      cfg.Hub.Capacity,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		Clock:            clock,
	}
}
