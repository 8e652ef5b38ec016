package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"readalong/internal/app"
	"readalong/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("readalong: %v", err)
	}
}

func run() error {
	cfg := config.LoadWithPrecedence(os.Getenv("READALONG_CONFIG_FILE"))

	application, err := app.NewApplication(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("Received signal %v, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	return application.Stop(shutdownCtx)
}
