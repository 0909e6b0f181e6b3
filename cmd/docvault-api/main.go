package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/docvault/internal/access"
	"github.com/MarcoPoloResearchLab/docvault/internal/assist"
	"github.com/MarcoPoloResearchLab/docvault/internal/auth"
	"github.com/MarcoPoloResearchLab/docvault/internal/catalog"
	"github.com/MarcoPoloResearchLab/docvault/internal/config"
	"github.com/MarcoPoloResearchLab/docvault/internal/database"
	"github.com/MarcoPoloResearchLab/docvault/internal/device"
	"github.com/MarcoPoloResearchLab/docvault/internal/licensing"
	"github.com/MarcoPoloResearchLab/docvault/internal/logging"
	"github.com/MarcoPoloResearchLab/docvault/internal/profiles"
	"github.com/MarcoPoloResearchLab/docvault/internal/server"
	"github.com/MarcoPoloResearchLab/docvault/internal/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "docvault-api",
		Short: "DocVault study document storefront backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "device-id",
		Short: "Print this installation's device identifier, creating it on first use",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printDeviceID(cmd)
		},
	})

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("allowed-origins", defaults.GetString("http.allowed_origins"), "Comma separated CORS origins")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().Int("capability-ttl-minutes", defaults.GetInt("access.capability_ttl_minutes"), "Open/export grant TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-encoding", defaults.GetString("log.encoding"), "Log encoding (json, console)")
	cmd.PersistentFlags().String("device-store", defaults.GetString("device.store_path"), "Path of the device identity file")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "access.capability_ttl_minutes", "capability-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.encoding", "log-encoding")
	bindFlag(cmd, "device.store_path", "device-store")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	catalogStore, err := catalog.NewGormStore(catalog.GormStoreConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	engine, err := licensing.NewEngine(licensing.EngineConfig{
		Catalog:    catalogStore,
		IDProvider: licensing.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	capabilities, err := auth.NewCapabilityIssuer(auth.CapabilityIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.CapabilityIssuer,
		TTL:           appConfig.CapabilityTTL,
	})
	if err != nil {
		return err
	}

	gate, err := access.NewGate(access.GateConfig{
		Catalog: catalogStore,
		Issuer:  capabilities,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	resolver, err := profiles.NewResolver(profiles.ResolverConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Catalog:  catalogStore,
		Engine:   engine,
		Gate:     gate,
		Sessions: session.NewStore(session.StoreConfig{Logger: logger}),
		Profiles: resolver,
		LoginLimiter: profiles.NewAttemptLimiter(profiles.AttemptLimiterConfig{
			MaxAttempts:  appConfig.LoginMaxAttempts,
			LockDuration: appConfig.LoginLockout,
		}),
		TokenManager:   tokenManager,
		Assist:         assist.NewGuard(assist.GuardConfig{Timeout: appConfig.AssistTimeout, Logger: logger}),
		Realtime:       server.NewRealtimeDispatcher(),
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func printDeviceID(cmd *cobra.Command) error {
	logger, err := logging.NewLogger(viper.GetString("log.level"), viper.GetString("log.encoding"))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	storePath := viper.GetString("device.store_path")
	if storePath == "" {
		storePath, err = device.DefaultStorePath()
		if err != nil {
			return err
		}
	}
	store, err := device.NewFileStore(storePath)
	if err != nil {
		return err
	}
	provider, err := device.NewProvider(device.ProviderConfig{
		Store:       store,
		Environment: installationEnvironment(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	id, err := provider.DeviceID(cmd.Context())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), id.String())
	return err
}

const unknownDisplay = "unknown"

func installationEnvironment() device.Environment {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	display := unknownDisplay
	columns := strings.TrimSpace(os.Getenv("COLUMNS"))
	lines := strings.TrimSpace(os.Getenv("LINES"))
	if columns != "" && lines != "" {
		display = columns + "x" + lines
	}
	return device.Environment{
		Agent:   fmt.Sprintf("docvault-api/%s/%s/%s", runtime.GOOS, runtime.GOARCH, hostname),
		Display: display,
	}
}
