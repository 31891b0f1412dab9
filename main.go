package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"cuttlefish/ai"
	"cuttlefish/bot"
	"cuttlefish/core"
	"cuttlefish/lib/sl"
	"cuttlefish/orchestrator"
	"cuttlefish/session"
	"cuttlefish/storage"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {

	_ = godotenv.Load()

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	conf := core.MustLoad(*configPath)
	log := setupLogger(conf.Env)
	log.With(
		slog.String("config", *configPath),
		slog.String("env", conf.Env),
		sl.Secret(conf.RunwareApiKey),
	).Info("starting cuttlefish bot")

	// Initialize the history store based on config
	var history storage.History
	if conf.Mongo.Enabled {
		mongoURI := fmt.Sprintf("mongodb://%s:%s@%s:%s",
			conf.Mongo.User, conf.Mongo.Password,
			conf.Mongo.Host, conf.Mongo.Port)
		var err error
		history, err = storage.NewMongoHistory(mongoURI, conf.Mongo.Database, log)
		if err != nil {
			log.With(
				slog.String("db", conf.Mongo.Database),
				slog.String("host", conf.Mongo.Host),
			).Error("falling back to memory history", sl.Err(err))
			history = storage.NewMemoryHistory(conf.HistorySize)
		} else {
			log.Info("using MongoDB history")
		}
	} else {
		history = storage.NewMemoryHistory(conf.HistorySize)
		log.Info("using in-memory history")
	}

	generator := ai.NewRunware(conf, log)
	images := orchestrator.New(conf, log, generator, session.NewTracker(), history)

	tgBot, err := bot.NewTgBot(conf, log)
	if err != nil {
		log.Error("creating telegram bot", sl.Err(err))
		return
	}

	tgBot.SetImages(images)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in goroutine
	go func() {
		if err := tgBot.Start(); err != nil {
			log.Error("bot stopped with error", sl.Err(err))
		}
	}()

	log.Info("bot started")

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info("received signal, shutting down", slog.String("signal", sig.String()))

	// Graceful shutdown: cancel in-flight generations, then close the store
	tgBot.Stop()

	if err := images.Close(); err != nil {
		log.Error("closing history store", sl.Err(err))
	}

	log.Info("shutdown complete")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal, envDev:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
