package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grafana/xk6-headless/api"
	"github.com/grafana/xk6-headless/browser"
	"github.com/grafana/xk6-headless/chromium"
	"github.com/grafana/xk6-headless/common"
	"github.com/grafana/xk6-headless/osext"
	"github.com/grafana/xk6-headless/otel"
	"github.com/grafana/xk6-headless/sim"
	"github.com/grafana/xk6-headless/storage"
	"github.com/grafana/xk6-headless/trace"
)

const shutdownTimeout = 5 * time.Second

// run opens url in a page and captures it as configured.
func run(ctx context.Context, cfg *Config, url string, stdout io.Writer) (err error) {
	logger := cfg.logger
	runID := uuid.NewString()
	ctx, cancel := context.WithCancel(osext.WithRunID(ctx, runID))
	defer cancel()

	tp, err := otel.NewTraceProvider(ctx, cfg.Trace)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := tp.Shutdown(sctx); serr != nil {
			logger.Warnf("run", "flushing traces: %v", serr)
		}
	}()
	ctx = common.WithTracer(ctx, trace.NewTracer(logger.Logger, tp, map[string]string{"run_id": runID}))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	ctx = common.WithRegisterer(ctx, reg)
	if cfg.MetricsAddr != "" {
		stop, err := serveMetrics(cfg.MetricsAddr, reg)
		if err != nil {
			return err
		}
		defer stop()
	}

	var launcher api.EngineLauncher
	switch cfg.Engine {
	case browser.EngineSim:
		launcher = sim.NewLauncher(sim.NewWeb(), logger)
	default:
		launcher = chromium.NewBrowserType(&cfg.Launch, logger)
	}

	p, err := common.NewPage(ctx, launcher, &cfg.Page, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	// interrupts stop the page between commands
	go func() {
		<-ctx.Done()
		_ = p.Close()
	}()

	if err := capture(ctx, cfg, p, url, stdout); err != nil {
		return err
	}
	if cfg.Console {
		printConsole(p, stdout)
	}

	return nil
}

func capture(ctx context.Context, cfg *Config, p *common.Page, url string, stdout io.Writer) error {
	logger := cfg.logger
	persister := &storage.LocalFilePersister{Stdout: stdout}

	start := time.Now()
	if err := p.Open(url); err != nil {
		return err
	}
	logger.Infof("run", "loaded %s in %s", url, time.Since(start).Round(time.Millisecond))

	if cfg.WaitFor != "" {
		if err := p.WaitForSelector(cfg.WaitFor, cfg.Page.LoadTimeout); err != nil {
			return err
		}
	}
	if cfg.Wait > 0 {
		if err := p.Wait(cfg.Wait); err != nil {
			return err
		}
	}

	captured := false
	if cfg.Eval != "" {
		v, err := p.Evaluate(cfg.Eval)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(v))
		captured = true
	}
	if cfg.HTML != "" {
		html, err := p.HTML()
		if err != nil {
			return err
		}
		if err := persister.Persist(ctx, cfg.HTML, strings.NewReader(html)); err != nil {
			return err
		}
		captured = true
	}
	if cfg.Screenshot != "" {
		png, err := p.Screenshot()
		if err != nil {
			return err
		}
		if err := persister.Persist(ctx, cfg.Screenshot, bytes.NewReader(png)); err != nil {
			return err
		}
		logger.Infof("run", "screenshot of %d bytes written to %s", len(png), cfg.Screenshot)
		captured = true
	}
	if captured {
		return nil
	}

	title, err := p.Title()
	if err != nil {
		return err
	}
	current, err := p.URL()
	if err != nil {
		return err
	}
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(stdout, "%s %s\n%s %s\n", bold("Title:"), title, bold("URL:"), current)

	return nil
}

func printConsole(p *common.Page, w io.Writer) {
	msgs, err := p.ConsoleMessages()
	if err != nil {
		return
	}
	levels := map[string]*color.Color{
		"error": color.New(color.FgRed),
		"warn":  color.New(color.FgYellow),
		"debug": color.New(color.FgHiBlack),
	}
	for _, m := range msgs {
		c, ok := levels[m.Level]
		if !ok {
			c = color.New(color.Reset)
		}
		_, _ = c.Fprintf(w, "[%s] %s\n", m.Level, m.Message)
	}
}

// serveMetrics serves the metrics of reg on addr until the returned
// function is called.
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			color.New(color.FgRed).Printf("metrics server: %v\n", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
