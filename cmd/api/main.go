package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/delacruz/bakeshop-api/internal/config"
	"github.com/delacruz/bakeshop-api/internal/database"
	"github.com/delacruz/bakeshop-api/internal/notify"
	"github.com/delacruz/bakeshop-api/internal/schedule"
	"github.com/delacruz/bakeshop-api/internal/store"
	"github.com/delacruz/bakeshop-api/pkg/logger"
)

func main() {
	log := logger.New(logger.DefaultConfig())

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(cfg.Bakery.Timezone)
	if err != nil {
		log.Error("load bakery timezone", "timezone", cfg.Bakery.Timezone, "error", err)
		os.Exit(1)
	}
	window := schedule.Window{
		Open:  cfg.Bakery.OpenHour,
		Close: cfg.Bakery.CloseHour,
		Loc:   loc,
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	log.Info("connected to database")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Notify.RabbitURL != "" {
		publisher, err := notify.NewPublisher(cfg.Notify.RabbitURL, cfg.Notify.Exchange)
		if err != nil {
			log.Error("connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		relay := notify.NewRelay(db, publisher, log, cfg.Notify.PollInterval)
		go relay.Run(ctx)

		log.Info("notification relay started", "exchange", cfg.Notify.Exchange)
	}

	app := &application{
		db:        db,
		window:    window,
		processor: store.SimulatedProcessor{},
		log:       log.WithComponent("api"),
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info("server starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
