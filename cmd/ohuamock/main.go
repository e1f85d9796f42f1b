package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/ohuakv/internal/config"
	"github.com/danmuck/ohuakv/internal/logging"
	"github.com/danmuck/ohuakv/internal/mockserver"
	"github.com/danmuck/ohuakv/internal/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	logging.ConfigureRuntime("ohuamock")
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ohuamock: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if cfg.LogLevel != "" && !logging.SetLevel(cfg.LogLevel) {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("ignoring unknown log level")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsListen != "" {
		observability.RegisterMetrics()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv := &http.Server{Addr: cfg.MetricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", cfg.MetricsListen).Msg("metrics listener failed")
			}
		}()
		defer metricsSrv.Close()
		log.Info().Str("addr", cfg.MetricsListen).Msg("metrics listening")
	}

	srv := mockserver.New()
	if err := srv.Listen(cfg.Listen); err != nil {
		return err
	}
	defer srv.Close()
	return srv.Serve(ctx)
}

func loadConfig(args []string) (config.MockConfig, error) {
	fs := flag.NewFlagSet("ohuamock", flag.ContinueOnError)
	path := fs.String("config", "", "mock config file (.toml, .yaml)")
	listen := fs.String("listen", config.DefaultMockListen, "listen address")
	metrics := fs.String("metrics", "", "prometheus /metrics listen address (empty = off)")
	if err := fs.Parse(args); err != nil {
		return config.MockConfig{}, err
	}

	cfg := config.DefaultMockConfig()
	if strings.TrimSpace(*path) != "" {
		loaded, err := config.LoadMockConfig(*path)
		if err != nil {
			return config.MockConfig{}, fmt.Errorf("load mock config: %w", err)
		}
		cfg = loaded
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = strings.TrimSpace(*listen)
		case "metrics":
			cfg.MetricsListen = strings.TrimSpace(*metrics)
		}
	})
	if err := cfg.Validate(); err != nil {
		return config.MockConfig{}, err
	}
	return cfg, nil
}
