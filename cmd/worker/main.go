package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"content-scheduler/internal/app"
	"content-scheduler/internal/config"
	"content-scheduler/internal/logging"
	"content-scheduler/internal/telemetry"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component("worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	rt, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("init runtime: %v", err)
	}
	defer rt.Close()

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	log.Printf("worker started with tick=%s retry_delay=%s max_attempts=%d", cfg.TickInterval, cfg.RetryDelay, cfg.MaxAttempts)
	if err := rt.Processor().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("worker stopped: %v", err)
	}
}
