package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ghalamif/PulseFlow"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "live":
		err = liveCommand(os.Args[2:])
	case "history":
		err = historyCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("pulse-edge %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to edge configuration file")
	debug := fs.Bool("debug", false, "Connect to stream.debug_target instead of stream.target")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := pulseflow.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	flow, err := pulseflow.ConfFromConfig(cfg)
	if err != nil {
		return err
	}
	if *debug {
		flow.StreamIN(pulseflow.StreamInDebug())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := pulseflow.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Printf("config %s looks good, streaming from %s\n", *cfgPath, cfg.Stream.Target)
	return nil
}

func liveCommand(args []string) error {
	fs := flag.NewFlagSet("live", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	target := fs.String("target", "", "Override stream.target")
	debug := fs.Bool("debug", false, "Connect to stream.debug_target instead of stream.target")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := pulseflow.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	flow, err := pulseflow.ConfFromConfig(cfg)
	if err != nil {
		return err
	}
	if *target != "" {
		flow.StreamIN(pulseflow.StreamInTarget(*target))
	}
	if *debug {
		flow.StreamIN(pulseflow.StreamInDebug())
	}

	mon, err := flow.Live()
	if err != nil {
		return err
	}
	sub, err := mon.Subscribe()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mon.Start(ctx); err != nil {
		return err
	}
	defer mon.Close()

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", mon.Target())
	for {
		snap, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, pulseflow.ErrSubscriptionClosed) {
				return nil
			}
			return err
		}
		printSnapshot(snap)
	}
}

func printSnapshot(snap pulseflow.Snapshot) {
	line := fmt.Sprintf("[%s] %-10s", time.Now().Format(time.TimeOnly), snap.Status)
	if n := len(snap.Samples); n > 0 {
		last := snap.Samples[n-1]
		st := pulseflow.ComputeStats(snap.Samples)
		line += fmt.Sprintf(" bpm=%.0f min=%.0f max=%.0f avg=%.1f points=%d", last.BPM, st.Min, st.Max, st.Avg, n)
	}
	if snap.Attempt > 0 {
		line += fmt.Sprintf(" attempt=%d", snap.Attempt)
	}
	if snap.LastError != nil {
		line += fmt.Sprintf(" error=%q", snap.LastError.Error())
	}
	fmt.Println(line)
}

var historyRanges = map[string]time.Duration{
	"5m": 5 * time.Minute,
	"1h": time.Hour,
	"1d": 24 * time.Hour,
}

func historyCommand(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	apiURL := fs.String("url", "http://localhost:9100", "Base URL of the edge HTTP API")
	window := fs.String("range", "1h", "Preset range ending now: 5m, 1h or 1d")
	from := fs.String("from", "", "Custom range start (RFC 3339 or unix ms); overrides -range")
	to := fs.String("to", "", "Custom range end (RFC 3339 or unix ms)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := url.Values{}
	if *from != "" || *to != "" {
		if *from == "" || *to == "" {
			return errors.New("-from and -to must be given together")
		}
		q.Set("from", *from)
		q.Set("to", *to)
	} else {
		d, ok := historyRanges[*window]
		if !ok {
			return fmt.Errorf("unknown range %q", *window)
		}
		now := time.Now().UTC()
		q.Set("from", now.Add(-d).Format(time.RFC3339))
		q.Set("to", now.Format(time.RFC3339))
	}

	client := &http.Client{Timeout: 10 * time.Second}
	var samples []pulseflow.Sample
	if err := fetchJSON(client, *apiURL+"/api/data?"+q.Encode(), &samples); err != nil {
		return err
	}
	var stats pulseflow.Stats
	if err := fetchJSON(client, *apiURL+"/api/stats?"+q.Encode(), &stats); err != nil {
		return err
	}

	for _, s := range samples {
		fmt.Printf("%s  %6.1f bpm\n", s.Time.Local().Format(time.DateTime), s.BPM)
	}
	fmt.Printf("%d samples  min=%.0f max=%.0f avg=%.1f\n", len(samples), stats.Min, stats.Max, stats.Avg)
	return nil
}

func fetchJSON(client *http.Client, u string, v any) error {
	resp, err := client.Get(u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("unexpected status %s: %s", resp.Status, body.Error)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var stateNames = map[float64]string{0: "connecting", 1: "online", 2: "offline"}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"pulse_connection_state":           0,
		"pulse_samples_accepted_total":     0,
		"pulse_samples_ingested_total":     0,
		"pulse_reconnects_scheduled_total": 0,
		"pulse_queue_length":               0,
		"pulse_wal_size_bytes":             0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %f", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] state=%s accepted=%.0f ingested=%.0f reconnects=%.0f queue=%.0f wal_bytes=%.0f\n",
		time.Now().Format(time.RFC3339),
		stateNames[targets["pulse_connection_state"]],
		targets["pulse_samples_accepted_total"],
		targets["pulse_samples_ingested_total"],
		targets["pulse_reconnects_scheduled_total"],
		targets["pulse_queue_length"],
		targets["pulse_wal_size_bytes"],
	)
	return nil
}

func printUsage() {
	fmt.Printf(`PulseFlow CLI

Usage:
  pulse-edge <command> [flags]

Commands:
  run        Start the edge runtime using the provided config (default)
  validate   Load and validate a config file without starting the runtime
  live       Connect to the heart-rate stream and print every snapshot
  history    Query stored samples and stats from a running edge
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  pulse-edge run -config ./data/config.yaml
  pulse-edge validate -config ./data/config.yaml
  pulse-edge live -target ws://localhost:8080/ws
  pulse-edge history -url http://localhost:9100 -range 5m
  pulse-edge stats -url http://localhost:9100/metrics -interval 1s
`)
}
