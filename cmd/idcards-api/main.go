package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/idcards/internal/attendance"
	"github.com/MarcoPoloResearchLab/idcards/internal/auth"
	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	"github.com/MarcoPoloResearchLab/idcards/internal/config"
	"github.com/MarcoPoloResearchLab/idcards/internal/database"
	"github.com/MarcoPoloResearchLab/idcards/internal/datasets"
	"github.com/MarcoPoloResearchLab/idcards/internal/export"
	"github.com/MarcoPoloResearchLab/idcards/internal/logging"
	"github.com/MarcoPoloResearchLab/idcards/internal/photos"
	"github.com/MarcoPoloResearchLab/idcards/internal/server"
	"github.com/MarcoPoloResearchLab/idcards/internal/templates"
	"github.com/MarcoPoloResearchLab/idcards/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "idcards-api",
		Short: "ID card designer and attendance backend",
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
	cmd.PersistentFlags().StringSlice("allowed-origins", nil, "CORS origins allowed to send credentials (default: any)")
	cmd.PersistentFlags().Bool("secure-cookies", defaults.GetBool("http.secure_cookies"), "Mark session cookies as Secure")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("cookie-name", defaults.GetString("auth.cookie_name"), "Session cookie name")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("auth.session_ttl_minutes"), "Session lifetime in minutes")
	cmd.PersistentFlags().Bool("seed-demo-accounts", defaults.GetBool("auth.seed_demo_accounts"), "Create the demo admin, faculty and student logins")
	cmd.PersistentFlags().String("photos-dir", defaults.GetString("photos.dir"), "Directory holding uploaded photos")
	cmd.PersistentFlags().String("photos-base-url", defaults.GetString("photos.base_url"), "URL prefix photos are served under")
	cmd.PersistentFlags().String("match-policy", defaults.GetString("photos.match_policy"), "Photo matching policy (exact, exact_then_substring)")
	cmd.PersistentFlags().String("attendance-timezone", defaults.GetString("attendance.timezone"), "IANA zone defining the attendance day")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "http.secure_cookies", "secure-cookies")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.cookie_name", "cookie-name")
	bindFlag(cmd, "auth.session_ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "auth.seed_demo_accounts", "seed-demo-accounts")
	bindFlag(cmd, "photos.dir", "photos-dir")
	bindFlag(cmd, "photos.base_url", "photos-base-url")
	bindFlag(cmd, "photos.match_policy", "match-policy")
	bindFlag(cmd, "attendance.timezone", "attendance-timezone")
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

	ids := cards.NewUUIDProvider()
	secret := []byte(appConfig.AuthSigningSecret)

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: secret,
		CookieName:    appConfig.AuthCookieName,
	})
	if err != nil {
		return err
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: secret,
		TokenTTL:      appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db, IDProvider: ids, Clock: time.Now, Logger: logger})
	if err != nil {
		return err
	}
	if appConfig.SeedDemoAccounts {
		created, err := userService.EnsureAccounts(ctx, users.DemoAccounts())
		if err != nil {
			return err
		}
		logger.Info("demo accounts ensured", zap.Strings("created", created))
	}

	templateStore, err := templates.NewStore(templates.StoreConfig{Database: db, IDProvider: ids, Clock: time.Now, Logger: logger})
	if err != nil {
		return err
	}
	datasetStore, err := datasets.NewStore(datasets.StoreConfig{Database: db, IDProvider: ids, Clock: time.Now, Logger: logger})
	if err != nil {
		return err
	}
	photoStore, err := photos.NewStore(photos.Config{
		Database:   db,
		Dir:        appConfig.PhotosDir,
		BaseURL:    appConfig.PhotosBaseURL,
		IDProvider: ids,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	attendanceService, err := attendance.NewService(attendance.Config{
		Database:   db,
		IDProvider: ids,
		Clock:      time.Now,
		Location:   appConfig.AttendanceLocation,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	policy, err := datasets.ParseMatchPolicy(appConfig.PhotoMatchPolicy)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:       validator,
		Issuer:         issuer,
		Users:          userService,
		Templates:      templates.NewRegistry(templateStore),
		Datasets:       datasetStore,
		Photos:         photoStore,
		Attendance:     attendanceService,
		Bridge:         export.NewBridge(export.BridgeConfig{Logger: logger}),
		ElementIDs:     ids,
		SessionIDs:     ids,
		MatchPolicy:    policy,
		AllowedOrigins: appConfig.AllowedOrigins,
		SecureCookies:  appConfig.SecureCookies,
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
