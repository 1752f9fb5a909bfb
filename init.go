package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"github.com/tournevent/upsbridge/internal/booking"
	"github.com/tournevent/upsbridge/internal/config"
	"github.com/tournevent/upsbridge/internal/labelstore"
	"github.com/tournevent/upsbridge/internal/telemetry"
	"github.com/tournevent/upsbridge/pkg/oauth"
	"github.com/tournevent/upsbridge/pkg/shipper"
	"github.com/tournevent/upsbridge/pkg/shipper/ups"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func loadConfig(envFile string) (*config.Config, error) {
	if envFile == "" {
		return config.Load()
	}
	return config.Load(envFile)
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

func initCLILogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewCLILogger(level)
}

func initTracer(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return func(context.Context) error { return nil }, nil
	}

	_, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version, cfg.Attributes()...)
	return shutdown, err
}

func initMetrics() (*prometheus.Registry, *telemetry.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, telemetry.NewMetrics(reg)
}

// initTokenStore returns the configured store and a function releasing it.
func initTokenStore(ctx context.Context, cfg *config.Config) (oauth.Store, func() error, error) {
	if cfg.TokenStore != config.TokenStoreRedis {
		return oauth.NewMemoryStore(), func() error { return nil }, nil
	}

	store := oauth.NewRedisStore(oauth.RedisStoreConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.RedisPrefix,
	})
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	return store, store.Close, nil
}

func initTokenCache(cfg *config.Config, store oauth.Store, logger *otelzap.Logger, metrics *telemetry.Metrics) *oauth.TokenCache {
	opts := []oauth.Option{oauth.WithLogger(logger)}
	if metrics != nil {
		opts = append(opts, oauth.WithLoginHook(metrics.RecordTokenRefresh))
	}

	return oauth.NewTokenCache(oauth.Config{
		TokenURL:     strings.TrimRight(cfg.UPSBaseURL, "/") + oauth.TokenPath,
		ClientID:     cfg.UPSClientID,
		ClientSecret: cfg.UPSClientSecret,
		MerchantID:   cfg.UPSMerchantID,
		CacheKey:     cfg.TokenCacheKey,
		Timeout:      cfg.UPSTimeout,
	}, store, opts...)
}

func initShipperRegistry(cfg *config.Config, tokens ups.TokenProvider, logger *otelzap.Logger) *shipper.Registry {
	registry := shipper.NewRegistry()

	tracer := otel.Tracer(cfg.ServiceName)

	registry.Register(ups.New(ups.Config{
		AccountNumber:  cfg.UPSAccount,
		BaseURL:        cfg.UPSBaseURL,
		TransactionSrc: cfg.UPSTransactionSrc,
		ServiceCode:    cfg.UPSServiceCode,
		Timeout:        cfg.UPSTimeout,
		UseMock:        cfg.UPSUseMock,
	}, tokens, logger, tracer))

	logger.Info("Registered carriers",
		zap.Strings("carriers", registry.Names()),
		zap.String("default", registry.Default()),
	)
	return registry
}

// app wires the components shared by the serve and ship commands.
type app struct {
	booking         *booking.Service
	tokens          *oauth.TokenCache // nil when UPS is mocked
	metricsRegistry *prometheus.Registry
	closers         []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *otelzap.Logger) (*app, error) {
	a := &app{}
	reg, metrics := initMetrics()
	a.metricsRegistry = reg

	var tokens ups.TokenProvider
	if !cfg.UPSUseMock {
		store, closeStore, err := initTokenStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closeStore)

		a.tokens = initTokenCache(cfg, store, logger, metrics)
		tokens = a.tokens
	}

	registry := initShipperRegistry(cfg, tokens, logger)

	fsys := afero.NewOsFs()
	agencies, err := booking.LoadYAMLDirectory(fsys, cfg.AgenciesFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("Loaded agencies", zap.String("file", cfg.AgenciesFile), zap.Int("count", len(agencies.IDs())))

	a.booking = booking.NewService(booking.Config{
		LabelFormat: shipper.LabelFormat(strings.ToLower(cfg.UPSLabelFormat)),
	}, registry, agencies, labelstore.New(fsys, cfg.LabelDir), logger, metrics)

	return a, nil
}

func (a *app) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
