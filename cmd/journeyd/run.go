package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukex/journey/pkg/cmd"
	"github.com/dukex/journey/pkg/config"
	"github.com/dukex/journey/pkg/engine"
	"github.com/dukex/journey/pkg/events"
	"github.com/dukex/journey/pkg/lock"
	"github.com/dukex/journey/pkg/log"
	"github.com/dukex/journey/pkg/otelhelper"
	"github.com/dukex/journey/pkg/providers/gateway"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPort     = 9091
	shutdownTimeout = 10 * time.Second
)

var ErrNoGateway = errors.New("gateway URL is required")

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the engine, the poller and the HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			databaseURLFlag(),
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the poll lock and number-pool counters; in-process when empty",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "gateway-url",
				Usage:   "Base URL of the messaging and telephony gateway",
				Sources: cli.EnvVars("GATEWAY_URL"),
			},
			&cli.StringFlag{
				Name:    "gateway-token",
				Usage:   "Bearer token for the gateway",
				Sources: cli.EnvVars("GATEWAY_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "engine-config",
				Usage:   "YAML file with engine tuning",
				Sources: cli.EnvVars("ENGINE_CONFIG"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			logLevelFlag(),
		},
		Action: run,
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("journeyd")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if command.String("gateway-url") == "" {
		return ErrNoGateway
	}

	cfg, err := config.Load(command.String("engine-config"))
	if err != nil {
		return err
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}

	defer func() {
		err := persistence.Close(context.Background())
		if err != nil {
			logger.Error("Failed to close persistence", "error", err)
		}
	}()

	redisClient, err := cmd.NewRedis(command.String("redis-url"))
	if err != nil {
		return fmt.Errorf("invalid redis URL: %w", err)
	}

	gw, err := gateway.New(logger, gateway.Options{
		BaseURL: command.String("gateway-url"),
		Token:   command.String("gateway-token"),
	})
	if err != nil {
		return err
	}

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
	if err != nil {
		return err
	}

	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	var tracer trace.Tracer
	if command.Bool("tracing") {
		tracer, err = otelhelper.NewTracer(ctx, "journeyd")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
	}

	reg := cmd.NewRegistry(logger, persistence, gw, redisClient, cfg)

	eng := engine.New(logger, engine.Config{
		Persistence: persistence,
		Executor:    reg,
		Publisher:   eventBus,
		Tracer:      tracer,
		Options:     cfg.EngineOptions(),
	})

	var locker lock.Locker = lock.NewLocal()
	if redisClient != nil {
		locker = lock.NewRedis(redisClient)
	}

	err = eventBus.Handle(events.CallStatusEvent, eng.HandleCallStatusEvent)
	if err != nil {
		return fmt.Errorf("failed to register call status handler: %w", err)
	}

	err = eventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	poller := engine.NewPoller(eng, locker, logger)

	err = poller.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start poller: %w", err)
	}

	app := NewAPI(logger, persistence, reg, eng).App()

	listenErr := make(chan error, 1)

	go func() {
		listenErr <- app.Listen(":" + strconv.Itoa(command.Int("port")))
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err = <-listenErr:
		logger.Error("API server stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := app.ShutdownWithContext(shutdownCtx)
	if shutdownErr != nil {
		logger.Error("Failed to stop API server", "error", shutdownErr)
	}

	stopErr := poller.Stop(shutdownCtx)
	if stopErr != nil {
		logger.Error("Failed to stop poller", "error", stopErr)
	}

	return err
}
