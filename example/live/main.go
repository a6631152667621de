package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/ghalamif/PulseFlow"
)

func main() {
	cfg, err := pulseflow.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	mon, err := pulseflow.NewLiveMonitor(cfg)
	if err != nil {
		log.Fatalf("monitor: %v", err)
	}
	sub, err := mon.Subscribe()
	if err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mon.Start(ctx); err != nil {
		log.Fatalf("start: %v", err)
	}
	defer mon.Close()

	for {
		snap, err := sub.Next(ctx)
		if errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			log.Fatalf("next: %v", err)
		}
		stats := pulseflow.ComputeStats(snap.Samples)
		fmt.Printf("%s points=%d avg=%.1f attempt=%d\n", snap.Status, len(snap.Samples), stats.Avg, snap.Attempt)
	}
}
