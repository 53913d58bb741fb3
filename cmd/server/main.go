package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/clinichq/paymentflow/internal/api"
	"github.com/clinichq/paymentflow/internal/artifact"
	"github.com/clinichq/paymentflow/internal/config"
	"github.com/clinichq/paymentflow/internal/gateway"
	"github.com/clinichq/paymentflow/internal/monitor"
	"github.com/clinichq/paymentflow/internal/policy"
	"github.com/clinichq/paymentflow/internal/registry"
	"github.com/clinichq/paymentflow/internal/reporting"
)

func initTracer() (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp, nil
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	tp, err := initTracer()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	contract, err := monitor.NewContractMonitor(monitor.CreatePaymentSchema)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to compile request schema")
	}
	pol, err := policy.NewInitiationPolicy(policy.DefaultRules())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to compile policy rules")
	}

	gw := gateway.NewHTTPClient(cfg.GatewayBaseURL, nil)
	fetcher := artifact.NewHTTPFetcher(cfg.GatewayBaseURL, nil)
	sessions := registry.New()
	activity := reporting.NewActivityLog()

	server := api.NewServer(cfg, gw, fetcher, sessions, pol, contract, activity, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Routes(),
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("starting payment confirmation service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
