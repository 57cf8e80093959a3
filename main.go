package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/korjavin/quizbot/bot"
	"github.com/korjavin/quizbot/config"
	"github.com/korjavin/quizbot/database"
	"github.com/korjavin/quizbot/seed"
)

func main() {
	envFile := pflag.String("env-file", ".env", "Path to a .env file with configuration")
	seedFile := pflag.String("seed", "", "YAML file with questions to load into an empty database")
	pflag.Parse()

	// Configure logging
	log.SetOutput(os.Stdout)
	log.SetReportCaller(true)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.Println("Starting QuizBot...")

	// Load config
	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level %q: %v", cfg.LogLevel, err)
	}
	if cfg.Debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open %s database: %v", cfg.DBDriver, err)
	}
	defer store.Close()

	if *seedFile != "" {
		if _, err := seed.IfEmpty(ctx, store, *seedFile); err != nil {
			log.Fatalf("Failed to seed questions: %v", err)
		}
	}

	// Initialize and start the bot
	b, err := bot.New(cfg, store)
	if err != nil {
		log.Fatalf("Failed to initialize bot: %v", err)
	}

	log.Println("Bot initialized successfully")
	b.Start(ctx)
	log.Println("Bot stopped")
}
