package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/krishangopalgupta/NotesApp/internal/auth"
	"github.com/krishangopalgupta/NotesApp/internal/config"
	"github.com/krishangopalgupta/NotesApp/internal/database"
	"github.com/krishangopalgupta/NotesApp/internal/logging"
	"github.com/krishangopalgupta/NotesApp/internal/media"
	"github.com/krishangopalgupta/NotesApp/internal/notes"
	"github.com/krishangopalgupta/NotesApp/internal/server"
	"github.com/krishangopalgupta/NotesApp/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile  string
	envFiles []string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "notes-api",
		Short: "Notes backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	rootCmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Purge trashed notes older than the retention window and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context())
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
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.StringSliceVar(&envFiles, "env-file", []string{".env"}, "Dotenv files loaded before reading the environment")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("access-secret", "", "Access token signing secret (overrides env)")
	flags.String("refresh-secret", "", "Refresh token signing secret (overrides env)")
	flags.Bool("cookie-secure", defaults.GetBool("auth.cookie_secure"), "Mark auth cookies Secure")
	flags.StringSlice("cors-origins", nil, "Allowed CORS origins")
	flags.String("media-bucket", "", "Avatar bucket name")
	flags.String("media-endpoint", "", "S3-compatible endpoint for avatars")
	flags.Duration("retention-window", defaults.GetDuration("retention.window"), "How long notes stay in the trash")
	flags.Duration("retention-interval", defaults.GetDuration("retention.interval"), "How often the trash is swept")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.access_secret", "access-secret")
	bindFlag(cmd, "auth.refresh_secret", "refresh-secret")
	bindFlag(cmd, "auth.cookie_secure", "cookie-secure")
	bindFlag(cmd, "cors.allowed_origins", "cors-origins")
	bindFlag(cmd, "media.bucket", "media-bucket")
	bindFlag(cmd, "media.endpoint", "media-endpoint")
	bindFlag(cmd, "retention.window", "retention-window")
	bindFlag(cmd, "retention.interval", "retention-interval")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return err
	}

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

	db, closeDB, err := openDatabase(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		AccessSecret:  []byte(appConfig.Auth.AccessSecret),
		RefreshSecret: []byte(appConfig.Auth.RefreshSecret),
		Issuer:        appConfig.Auth.Issuer,
		AccessTTL:     appConfig.Auth.AccessTTL,
		RefreshTTL:    appConfig.Auth.RefreshTTL,
	})
	if err != nil {
		return err
	}
	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		Tokens:     tokens,
		CookieName: auth.AccessTokenCookie,
	})
	if err != nil {
		return err
	}

	avatarStore, err := media.NewS3Store(signalCtx, media.S3Config{
		Bucket:        appConfig.Media.Bucket,
		Region:        appConfig.Media.Region,
		Endpoint:      appConfig.Media.Endpoint,
		AccessKey:     appConfig.Media.AccessKey,
		SecretKey:     appConfig.Media.SecretKey,
		PublicBaseURL: appConfig.Media.PublicBaseURL,
		MaxBytes:      appConfig.Media.MaxAvatarBytes,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Database:  db,
		Passwords: auth.NewPasswordHasher(appConfig.Auth.BcryptCost),
		Tokens:    tokens,
		Media:     avatarStore,
		Clock:     time.Now,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	notesService, err := notes.NewService(notes.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: notes.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	sweeper, err := notes.NewRetentionSweeper(notes.SweeperConfig{
		Purger:   notesService,
		Interval: appConfig.Retention.Interval,
		Window:   appConfig.Retention.Window,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:       sessions,
		UsersService:   usersService,
		NotesService:   notesService,
		Realtime:       server.NewRealtimeDispatcher(),
		Cookies:        server.CookieSettings{Secure: appConfig.Auth.CookieSecure},
		AllowedOrigins: appConfig.CORS.AllowedOrigins,
		AuthRateLimit: server.RateLimit{
			PerMinute: appConfig.RateLimit.AuthPerMinute,
			Burst:     appConfig.RateLimit.AuthBurst,
		},
		MaxAvatarBytes: appConfig.Media.MaxAvatarBytes,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := newHTTPServer(appConfig.HTTPAddress, handler)
	httpServer.RegisterOnShutdown(stop)

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		sweeper.Run(signalCtx)
	}()
	defer background.Wait()

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
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		stop()
		return err
	}
}

// newHTTPServer derives every request context from a base context that Shutdown
// cancels, so long-lived streams return instead of holding Shutdown until its deadline.
func newHTTPServer(address string, handler http.Handler) *http.Server {
	baseCtx, cancelBase := context.WithCancel(context.Background())
	httpServer := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	httpServer.RegisterOnShutdown(cancelBase)
	return httpServer
}

func runSweep(ctx context.Context) error {
	appConfig, err := config.LoadStorage(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, closeDB, err := openDatabase(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	notesService, err := notes.NewService(notes.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	sweeper, err := notes.NewRetentionSweeper(notes.SweeperConfig{
		Purger: notesService,
		Window: appConfig.Retention.Window,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	_, err = sweeper.Sweep(ctx)
	return err
}

func openDatabase(appConfig config.AppConfig, logger *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = sqlDB.Close() }, nil
}
