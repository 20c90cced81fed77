package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "content-scheduler/internal/api"
	"content-scheduler/internal/app"
	"content-scheduler/internal/config"
	"content-scheduler/internal/logging"
	"content-scheduler/internal/ratelimit"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component("api")

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

	var limiter api.Limiter
	if rt.Redis != nil && cfg.RateLimitCapacity > 0 {
		limiter = ratelimit.NewTokenBucket(rt.Redis, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
	}

	server := api.New(rt.Service, rt.Store, limiter)
	if hc, ok := rt.Store.(api.HealthChecker); ok {
		server.WithHealthCheck(hc)
	}
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	loopDone := make(chan struct{})
	if cfg.EmbeddedWorker {
		processor := rt.Processor()
		go func() {
			defer close(loopDone)
			_ = processor.Run(ctx)
		}()
	} else {
		close(loopDone)
	}

	log.Infof("api listening on :%s (embedded worker: %v)", cfg.HTTPPort, cfg.EmbeddedWorker)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	<-loopDone
}
