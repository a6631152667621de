package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/PulseFlow/pkg/pulseflow"
)

func main() {
	flow, err := pulseflow.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(batch []pulseflow.Sample) error {
		for _, sample := range batch {
			fmt.Printf("%s bpm=%.0f\n", sample.Time.Format(time.RFC3339Nano), sample.BPM)
		}
		return nil
	}

	if err := flow.Run(ctx, pulseflow.StreamOutCallback("stdout", callback)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}
