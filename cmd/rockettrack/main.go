package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rockettrack/internal/config"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./rockettrack.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(ctx, cfg, log.Default())
	if err != nil {
		log.Fatalf("rockettrack init failed: %v", err)
	}
	log.Printf("rockettrack starting session=%s unit=%s", rt.session.ID(), cfg.Unit)

	<-ctx.Done()
	log.Printf("rockettrack stopping")
	rt.Close()
}
