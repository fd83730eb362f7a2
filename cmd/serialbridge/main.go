package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Station-Manager/serialcomm"
	"github.com/Station-Manager/serialcomm/internal/bridge"
	"github.com/Station-Manager/serialcomm/internal/logger"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8989", "HTTP listen address")
	configFile := flag.String("config", "", "JSON serial config file")
	device := flag.String("device", "", "serial device path, overrides the config file")
	connect := flag.Bool("connect", true, "connect to the device at startup")
	metricsInterval := flag.Duration("metrics-interval", 5*time.Second, "interval between metrics events, 0 disables them")
	logFile := flag.String("log-file", "", "write logs to this file instead of stderr")
	logLevel := flag.String("log-level", "info", "log level")

	flag.Parse()

	log, closer, err := logger.New(logger.Config{Level: *logLevel, File: *logFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer closer.Close()

	var cfg serialcomm.Config
	if *configFile != "" {
		if cfg, err = serialcomm.LoadConfig(*configFile); err != nil {
			log.Fatal().Err(err).Msg("loading config")
		}
	}
	if *device != "" {
		cfg.PortName = *device
	}
	if cfg.PortName == "" {
		log.Fatal().Msg("no serial device given (use -device or a config file)")
	}

	transport, err := serialcomm.NewTransport(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("creating transport")
	}
	adapter := serialcomm.New(transport, cfg, serialcomm.WithLogger(log))
	br := bridge.New(adapter, bridge.WithLogger(log), bridge.WithMetricsInterval(*metricsInterval))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *connect {
		if err = adapter.Connect(ctx); err != nil {
			log.Error().Err(err).Msg("initial connect failed, use POST /api/connect to retry")
		}
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           br.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		br.Close()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", *addr).Str("port", cfg.PortName).Msg("serial bridge listening")
	if err = srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("http server")
	}

	if err = adapter.Disconnect(); err != nil {
		log.Error().Err(err).Msg("disconnect")
	}
}
