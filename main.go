package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/tournevent/upsbridge/internal/booking"
	"github.com/tournevent/upsbridge/internal/server"
	"go.uber.org/zap"
)

var version = "0.0.1"

var envFile string

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "upsbridge",
	Short:   "UPS shipping bridge - OAuth token cache and shipment booking",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var shipCmd = &cobra.Command{
	Use:   "ship <parcel.yaml>",
	Short: "Book a shipment for a parcel file and print the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runShip,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Obtain a UPS access token through the cache and print it",
	RunE:  runToken,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from this file first")
	rootCmd.AddCommand(serveCmd, shipCmd, tokenCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// Load configuration
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	// Initialize telemetry
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(context.Background())
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("Starting UPS bridge",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.String("ups_base_url", cfg.UPSBaseURL),
		zap.String("token_store", cfg.TokenStore),
	)

	opts := []server.Option{server.WithGatherer(a.metricsRegistry)}
	if a.tokens != nil {
		opts = append(opts, server.WithTokenChecker(a.tokens))
	}

	srv := server.New(server.Config{Port: cfg.Port}, a.booking, logger, opts...)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runShip(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	logger, err := initCLILogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	parcel, err := booking.LoadParcel(afero.NewOsFs(), args[0])
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.booking.CreateShipment(ctx, parcel)
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}

func runToken(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	if cfg.UPSUseMock {
		return fmt.Errorf("UPS_USE_MOCK is set; no token endpoint to call")
	}

	logger, err := initCLILogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, closeStore, err := initTokenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	tok, err := initTokenCache(cfg, store, logger, nil).Token(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]interface{}{
		"token":      tok.Token,
		"expires_at": time.UnixMilli(tok.ExpiresAt).UTC().Format(time.RFC3339),
	})
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
