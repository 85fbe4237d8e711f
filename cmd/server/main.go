package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/api"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/broker"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/config"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/database"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/engine"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/events"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/execution"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/feedback"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/gatekeeper"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/lifecycle"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/marketdata"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/risk"
	tradesignal "github.com/JagPat/quantumleap-trading-backend-sub004/internal/signal"
)

// accountResolver maps automations to their broker account through the
// automation record itself.
type accountResolver struct {
	db *database.DB
}

func (r *accountResolver) AccountID(automationID int) (string, error) {
	a, err := r.db.GetAutomationByID(automationID)
	if err != nil {
		return "", err
	}
	return a.AccountID, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, using environment")
	}

	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "db/migrations"
	}
	if err := db.Migrate(migrationsPath); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	// Market data: Yahoo Finance behind a Redis quote cache.
	var quotes marketdata.Source = marketdata.NewYahooSource()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.WithError(err).Warn("redis unavailable, quote caching disabled")
	} else {
		quotes = marketdata.NewCachedSource(quotes, redisClient)
	}

	var publisher *events.Publisher
	if cfg.Kafka.Enabled {
		publisher = events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer publisher.Close()
	}

	lifecycleManager := lifecycle.NewManager(db, publisher)
	governor := risk.NewGovernor(db, lifecycleManager, cfg.Risk)
	strategy := tradesignal.NewMomentum(cfg.Signal)
	gate := gatekeeper.New(db, cfg.Gate)

	// The position book is shared by both execution modes and rebuilt from
	// persisted snapshots on startup.
	book := execution.NewPositionBook()
	snapshots, err := db.GetAllPaperPositions()
	if err != nil {
		log.WithError(err).Fatal("failed to load position snapshots")
	}
	book.Restore(snapshots)

	paper := execution.NewPaper(cfg.Paper, book, db)
	live := execution.NewLive(
		broker.NewRESTBroker(cfg.Broker.BaseURL),
		&broker.StaticCredentials{Creds: broker.Credentials{
			APIKey:      cfg.Broker.APIKey,
			AccessToken: cfg.Broker.AccessToken,
		}},
		&accountResolver{db: db},
		book,
		db,
	)

	feedbackEngine := feedback.New(db, cfg.Feedback)

	eng := engine.New(db, quotes, governor, strategy, gate, paper, live, feedbackEngine, publisher, cfg.Engine)
	if err := eng.Start(); err != nil {
		log.WithError(err).Fatal("failed to start engine")
	}

	handler := api.NewHandler(db, lifecycleManager, eng)
	router := api.SetupRoutes(handler)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.WithField("addr", addr).Info("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	eng.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
}
