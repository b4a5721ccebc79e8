package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimsum-app/backend/internal/auth"
	"github.com/dimsum-app/backend/internal/config"
	"github.com/dimsum-app/backend/internal/database"
	"github.com/dimsum-app/backend/internal/interactions"
	"github.com/dimsum-app/backend/internal/logging"
	"github.com/dimsum-app/backend/internal/server"
	"github.com/dimsum-app/backend/internal/users"
	"github.com/dimsum-app/backend/internal/wallet"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dimsum-api",
		Short: "DimSum identity and interaction backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

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
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("token-signing-secret", "", "Miniprogram token signing secret (overrides env)")
	cmd.PersistentFlags().Int("token-access-ttl-hours", defaults.GetInt("token.access_ttl_hours"), "Access token TTL in hours")
	cmd.PersistentFlags().Int("token-refresh-ttl-hours", defaults.GetInt("token.refresh_ttl_hours"), "Refresh token TTL in hours")
	cmd.PersistentFlags().String("session-signing-secret", "", "Web session cookie signing secret (overrides env)")
	cmd.PersistentFlags().String("session-cookie-name", defaults.GetString("session.cookie_name"), "Web session cookie name")
	cmd.PersistentFlags().String("wechat-app-id", defaults.GetString("wechat.app_id"), "WeChat miniprogram app id")
	cmd.PersistentFlags().String("wechat-app-secret", "", "WeChat miniprogram app secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "token.signing_secret", "token-signing-secret")
	bindFlag(cmd, "token.access_ttl_hours", "token-access-ttl-hours")
	bindFlag(cmd, "token.refresh_ttl_hours", "token-refresh-ttl-hours")
	bindFlag(cmd, "session.signing_secret", "session-signing-secret")
	bindFlag(cmd, "session.cookie_name", "session-cookie-name")
	bindFlag(cmd, "wechat.app_id", "wechat-app-id")
	bindFlag(cmd, "wechat.app_secret", "wechat-app-secret")
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

	logger, err := logging.NewLogger(appConfig.LogLevel)
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

	userService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	nonceRegistry, err := wallet.NewRegistry(wallet.RegistryConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	bindingService, err := wallet.NewBindingService(wallet.BindingServiceConfig{
		Database: db,
		Registry: nonceRegistry,
		Verifier: wallet.NewPersonalSignVerifier(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	ledger, err := interactions.NewService(interactions.ServiceConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	tokenService, err := auth.NewTokenService(auth.TokenServiceConfig{
		SigningSecret: []byte(appConfig.TokenSigningSecret),
		Issuer:        appConfig.TokenIssuer,
		AccessTTL:     time.Duration(appConfig.AccessTTLHours) * time.Hour,
		RefreshTTL:    time.Duration(appConfig.RefreshTTLHours) * time.Hour,
	})
	if err != nil {
		return err
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		Issuer:        appConfig.SessionIssuer,
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	wechatClient, err := auth.NewWeChatClient(auth.WeChatClientConfig{
		AppID:     appConfig.WeChatAppID,
		AppSecret: appConfig.WeChatAppSecret,
		Endpoint:  appConfig.WeChatEndpoint,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:     sessionValidator,
		Tokens:       tokenService,
		WeChat:       wechatClient,
		Users:        userService,
		Binding:      bindingService,
		Nonces:       nonceRegistry,
		Interactions: ledger,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
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
