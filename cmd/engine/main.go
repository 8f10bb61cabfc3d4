package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/louisbranch/storyforge/internal/platform/config"
	"github.com/louisbranch/storyforge/internal/platform/otel"
	"github.com/louisbranch/storyforge/internal/platform/timeouts"
	"github.com/louisbranch/storyforge/internal/services/world/app"
)

func main() {
	log.SetPrefix("[ENGINE] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg app.RuntimeConfig
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatalf("parse config: %v", err)
	}

	shutdown, err := otel.Setup(ctx, "storyforge-engine")
	if err != nil {
		log.Fatalf("setup tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("engine runtime: %v", err)
	}
}
