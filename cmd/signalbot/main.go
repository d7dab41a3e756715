package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"signal-servicev1/config"
	"signal-servicev1/internal/logger"
	"signal-servicev1/internal/service"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[signalbot] starting...")

	cfg := config.Load()
	params, err := config.LoadParams(cfg.ParamsFile)
	if err != nil {
		log.Fatalf("[signalbot] params: %v", err)
	}

	lg := logger.Init("signalbot", logger.ParseLevel(cfg.LogLevel))

	svc, err := service.New(cfg, params, lg)
	if err != nil {
		log.Fatalf("[signalbot] init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		lg.Info("shutdown signal received", slog.String("signal", s.String()))
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[signalbot] run: %v", err)
	}
	log.Println("[signalbot] stopped")
}
