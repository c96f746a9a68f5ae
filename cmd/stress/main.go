package main

import (
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/lixenwraith/logfwd"
	"github.com/lixenwraith/logfwd/compat"
)

const maxMessageSize = 10000

var severities = []logfwd.Severity{
	logfwd.SeverityDebug,
	logfwd.SeverityInfo,
	logfwd.SeverityWarning,
	logfwd.SeverityError,
	logfwd.SeverityScriptInfo,
}

var pipeline *logfwd.Pipeline

func generateRandomMessage(size int) string {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 "
	var sb strings.Builder
	sb.Grow(size)
	for i := 0; i < size; i++ {
		sb.WriteByte(chars[rand.Intn(len(chars))])
	}
	return sb.String()
}

// logBurst simulates a burst of logging activity from a non-owner goroutine
func logBurst(burstID, perBurst, numWorkers int) {
	for i := 0; i < perBurst; i++ {
		sev := severities[rand.Intn(len(severities))]
		msg := generateRandomMessage(rand.Intn(maxMessageSize) + 10)
		pipeline.Submitf(sev, "%s wkr=%d bst=%d seq=%d rnd=%d",
			msg, burstID%numWorkers, burstID, i, rand.Int63())
	}
}

func worker(burstChan chan int, wg *sync.WaitGroup, completedBursts *atomic.Int64, perBurst, numWorkers, totalBursts int) {
	defer wg.Done()
	for burstID := range burstChan {
		logBurst(burstID, perBurst, numWorkers)
		completed := completedBursts.Add(1)
		if completed%10 == 0 || completed == int64(totalBursts) {
			fmt.Printf("\rProgress: %d/%d bursts completed", completed, totalBursts)
		}
	}
}

func main() {
	var (
		configFile  = pflag.StringP("config", "c", "", "TOML file with a [logfwd] table")
		collector   = pflag.String("collector", "127.0.0.1:9500", "Collector address")
		transport   = pflag.String("transport", logfwd.TransportTCP, "Transport: tcp, http, beats or none")
		totalBursts = pflag.Int("bursts", 100, "Number of bursts")
		perBurst    = pflag.Int("per-burst", 500, "Records per burst")
		numWorkers  = pflag.Int("workers", 50, "Concurrent submitting goroutines")
		maxBuffered = pflag.Int64("max-buffered", 0, "Outstanding record limit, 0 for default")
		overrides   = pflag.StringSlice("set", nil, "Extra key=value configuration overrides")
	)
	pflag.Parse()

	fmt.Println("--- Forwarding Pipeline Stress Test ---")

	cfg := logfwd.DefaultConfig()
	if *configFile != "" {
		loaded, err := logfwd.NewConfigFromFile(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.Collector = *collector
	cfg.Transport = *transport
	cfg.MaxBuffered = *maxBuffered
	cfg.LocalEcho = false
	cfg.HeartbeatIntervalS = 1

	var err error
	pipeline, err = compat.NewBuilder().WithConfig(cfg).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pipeline: %v\n", err)
		os.Exit(1)
	}
	if len(*overrides) > 0 {
		if err := pipeline.ApplyConfigString(*overrides...); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid override: %v\n", err)
			os.Exit(1)
		}
	}
	if err := pipeline.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start pipeline: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Starting stress test: %d workers, %d bursts, %d records/burst, %s to %s.\n",
		*numWorkers, *totalBursts, *perBurst, *transport, *collector)
	fmt.Println("Press Ctrl+C to stop early.")

	burstChan := make(chan int, *numWorkers)
	var wg sync.WaitGroup
	completedBursts := atomic.Int64{}
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	stopChan := make(chan struct{})

	go func() {
		<-sigChan
		fmt.Println("\n[Signal Received] Stopping burst generation...")
		close(stopChan)
	}()

	for i := 0; i < *numWorkers; i++ {
		wg.Add(1)
		go worker(burstChan, &wg, &completedBursts, *perBurst, *numWorkers, *totalBursts)
	}

	startTime := time.Now()
	for i := 1; i <= *totalBursts; i++ {
		select {
		case burstChan <- i:
		case <-stopChan:
			fmt.Println("[Signal Received] Halting burst submission.")
			goto endLoop
		}
	}
endLoop:
	close(burstChan)

	fmt.Println("\nWaiting for workers to finish...")
	wg.Wait()
	duration := time.Since(startTime)
	finalCompleted := completedBursts.Load()

	fmt.Printf("\n--- Test Finished ---")
	fmt.Printf("\nCompleted %d/%d bursts in %v\n", finalCompleted, *totalBursts, duration.Round(time.Millisecond))
	if finalCompleted > 0 && duration.Seconds() > 0 {
		perSec := float64(finalCompleted*int64(*perBurst)) / duration.Seconds()
		fmt.Printf("Approximate records/sec: %.2f\n", perSec)
	}

	fmt.Println("Shutting down pipeline (allowing up to 10s)...")
	if err := pipeline.Shutdown(10 * time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "Pipeline shutdown error: %v\n", err)
	}

	s := pipeline.Stats()
	fmt.Printf("submitted=%d sent=%d dropped=%d evictions=%d flushed_local=%d\n",
		s.Submitted, s.Sent, s.Dropped, s.Evictions, s.FlushedLocal)
}
