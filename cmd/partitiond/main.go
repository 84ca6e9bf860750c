package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/nyaruka/partition"
	"github.com/nyaruka/partition/runtime"
	"github.com/nyaruka/partition/web"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry"
)

var version = "Dev"

func main() {
	config := partition.LoadConfig("partitiond.toml")

	// if we have a custom version, use it
	if version != "Dev" {
		config.Version = version
	}

	var level slog.Level
	err := level.UnmarshalText([]byte(config.LogLevel))
	if err != nil {
		log.Fatalf("invalid log level %s", config.LogLevel)
	}

	// configure our logger
	logHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(logHandler))

	logger := slog.With("comp", "main")
	logger.Info("starting partitiond", "version", version)

	// if we have a DSN entry, try to initialize it
	if config.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:           config.SentryDSN,
			EnableTracing: false,
		})
		if err != nil {
			log.Fatalf("error initiating sentry client, error %s, dsn %s", err, config.SentryDSN)
		}

		defer sentry.Flush(2 * time.Second)

		logger = slog.New(
			slogmulti.Fanout(
				logHandler,
				slogsentry.Option{Level: slog.LevelError}.NewSentryHandler(),
			),
		)
		logger = logger.With("release", version)
		slog.SetDefault(logger)
	}

	if err := config.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	rt, err := runtime.NewRuntime(config)
	if err != nil {
		logger.Error("error creating runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	for _, problem := range rt.Health(context.Background()) {
		logger.Warn("connection problem on startup", "problem", problem)
	}

	if err := rt.SeedSequences(context.Background()); err != nil {
		logger.Error("error seeding sequences", "error", err)
		os.Exit(1)
	}

	if config.Port == 0 {
		logger.Info("no port configured, nothing to serve")
		return
	}

	server := web.NewServer(rt)
	server.Start()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("stopping", "signal", <-ch)

	server.Stop()
}
