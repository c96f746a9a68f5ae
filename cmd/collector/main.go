package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/valyala/fasthttp"

	"github.com/lixenwraith/logfwd"
	"github.com/lixenwraith/logfwd/codec"
	"github.com/lixenwraith/logfwd/collector"
	"github.com/lixenwraith/logfwd/compat"
	"github.com/lixenwraith/logfwd/sanitizer"
)

func main() {
	var (
		tcpAddr   = pflag.String("tcp", "127.0.0.1:9500", "TCP listen address for framed units, empty to disable")
		httpAddr  = pflag.String("http", "127.0.0.1:9600", "HTTP listen address for batch posts, empty to disable")
		dir       = pflag.String("dir", "", "Also write received records to <dir>/collector.log")
		multicore = pflag.Bool("multicore", false, "Run one gnet event loop per CPU")
		verbose   = pflag.BoolP("verbose", "v", false, "Print record origin and severity")
		policy    = pflag.String("sanitize", string(sanitizer.PolicyTxt), "Payload sanitization: raw, txt, escape or strip")
	)
	pflag.Parse()

	preset, err := sanitizer.ParsePolicy(*policy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "collector: %v\n", err)
		os.Exit(2)
	}
	clean := sanitizer.New().Policy(preset)

	if *tcpAddr == "" && *httpAddr == "" {
		fmt.Fprintln(os.Stderr, "collector: nothing to serve, set --tcp or --http")
		os.Exit(2)
	}

	// The collector's own diagnostics go through a non-forwarding pipeline sharing the record sink
	cfg := logfwd.DefaultConfig()
	cfg.Forward = false
	cfg.Transport = logfwd.TransportNone
	cfg.Name = "collector"
	if *dir != "" {
		cfg.EnableFile = true
		cfg.Directory = *dir
	}

	sink, err := logfwd.NewLocalSink(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "collector: failed to open local sink: %v\n", err)
		os.Exit(1)
	}
	defer sink.Close()

	p := logfwd.NewPipeline()
	p.SetSink(sink)
	if err := p.ApplyConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "collector: %v\n", err)
		os.Exit(1)
	}
	defer p.Shutdown()

	// Payloads come from remote components and may carry terminal control sequences
	handler := func(rec codec.Record, remote string) {
		var line []byte
		if *verbose {
			line = fmt.Appendf(line, "%s uid=%d kind=%d id=%d %s | ",
				remote, rec.UID, rec.ComponentKind, rec.ComponentID, rec.Severity)
		}
		rec.Payload = clean.Append(line, rec.Payload)
		if err := sink.WriteRecord(rec); err != nil {
			fmt.Fprintf(os.Stderr, "collector: write failed: %v\n", err)
		}
	}

	srv, err := collector.New(handler,
		collector.WithLogger(compat.NewGnetAdapter(p)),
		collector.WithMulticore(*multicore))
	if err != nil {
		fmt.Fprintf(os.Stderr, "collector: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 2)

	if *tcpAddr != "" {
		go func() {
			if err := srv.ServeTCP(*tcpAddr); err != nil {
				errCh <- fmt.Errorf("tcp: %w", err)
			}
		}()
		if srv.WaitReady(5 * time.Second) {
			p.Info("listening for framed units on", *tcpAddr)
		}
	}

	var httpSrv *fasthttp.Server
	if *httpAddr != "" {
		httpSrv = &fasthttp.Server{
			Handler:            srv.HandleHTTP,
			Name:               "logfwd-collector",
			Logger:             compat.NewFastHTTPAdapter(p),
			MaxRequestBodySize: 64 << 20,
		}
		go func() {
			if err := httpSrv.ListenAndServe(*httpAddr); err != nil {
				errCh <- fmt.Errorf("http: %w", err)
			}
		}()
		p.Info("accepting batches at", "http://"+*httpAddr+collector.IngestPath)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		p.Error("server failed:", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if httpSrv != nil {
		_ = httpSrv.ShutdownWithContext(shutdownCtx)
	}
	_ = srv.Stop(shutdownCtx)

	p.Info("stopped after", srv.Received(), "records,", srv.Rejected(), "rejected")
}
