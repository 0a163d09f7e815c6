package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-accounts/pkg/accounts"
	accountsapi "github.com/tendant/simple-accounts/pkg/accounts/api"
	"github.com/tendant/simple-accounts/pkg/client"
	"github.com/tendant/simple-accounts/pkg/config"
	"github.com/tendant/simple-accounts/pkg/emailchange"
	"github.com/tendant/simple-accounts/pkg/notice"
	"github.com/tendant/simple-accounts/pkg/notification"
	"github.com/tendant/simple-accounts/pkg/prefs"
	"github.com/tendant/simple-accounts/pkg/ratelimit"
)

type AccountsDbConfig struct {
	Host     string `env:"ACCOUNTS_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"ACCOUNTS_PG_PORT" env-default:"5432"`
	Database string `env:"ACCOUNTS_PG_DATABASE" env-default:"accounts_db"`
	User     string `env:"ACCOUNTS_PG_USER" env-default:"accounts"`
	Password string `env:"ACCOUNTS_PG_PASSWORD" env-default:"pwd"`
}

func (d AccountsDbConfig) toDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Database)
}

type JwtConfig struct {
	JwtSecret string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
}

type EmailConfig struct {
	Host     string `env:"EMAIL_HOST" env-default:"localhost"`
	Port     int    `env:"EMAIL_PORT" env-default:"1025"`
	Username string `env:"EMAIL_USERNAME" env-default:""`
	Password string `env:"EMAIL_PASSWORD" env-default:""`
	From     string `env:"EMAIL_FROM" env-default:"noreply@example.com"`
	TLS      bool   `env:"EMAIL_TLS" env-default:"false"`
}

type Config struct {
	BaseUrl          string `env:"BASE_URL" env-default:"http://localhost:4000"`
	AccountsDbConfig AccountsDbConfig
	JwtConfig        JwtConfig
	EmailConfig      EmailConfig
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env file if it exists (before reading environment variables)
	if err := godotenv.Load(); err == nil {
		slog.Info("Configuration loaded from .env file")
	}

	cfg := Config{}
	cleanenv.ReadEnv(&cfg)

	server := app.DefaultApp()
	app.RegisterHealthzRoutes(server.R)

	pool, err := pgxpool.New(context.Background(), cfg.AccountsDbConfig.toDatabaseURL())
	if err != nil {
		slog.Error("Failed to create database pool", "error", err)
		os.Exit(-1)
	}
	defer pool.Close()

	notificationManager, err := notice.NewNotificationManager(notification.SMTPConfig{
		Host:     cfg.EmailConfig.Host,
		Port:     cfg.EmailConfig.Port,
		Username: cfg.EmailConfig.Username,
		Password: cfg.EmailConfig.Password,
		From:     cfg.EmailConfig.From,
		TLS:      cfg.EmailConfig.TLS,
	})
	if err != nil {
		slog.Error("Failed to create notification manager", "error", err)
		os.Exit(-1)
	}

	accountRepo := accounts.NewPostgresAccountRepository(pool)
	preferenceService := prefs.NewPreferenceService(prefs.NewPostgresPreferenceRepository(pool))
	emailChangeService := emailchange.NewService(
		emailchange.NewPostgresRepository(pool),
		accountRepo,
		notificationManager,
		emailchange.WithBaseURL(cfg.BaseUrl),
		emailchange.WithEmailValidator(accounts.ValidateEmail),
	)

	accountService := accounts.NewAccountService(accountRepo,
		accounts.WithPreferences(preferenceService),
		accounts.WithEmailChanger(emailChangeService),
		accounts.WithNotificationManager(notificationManager),
		accounts.WithConfigProvider(config.NewEnvProvider()),
	)

	handler := accountsapi.NewHandler(accountService)

	ipLimits := ratelimit.DefaultConfig()
	ipLimits.PerUserEnabled = false
	userLimits := ratelimit.DefaultConfig()
	userLimits.PerIPEnabled = false

	tokenAuth := jwtauth.New("HS256", []byte(cfg.JwtConfig.JwtSecret), nil)
	server.R.Route("/api", func(r chi.Router) {
		r.Use(ratelimit.NewMiddleware(ipLimits).Handler)
		handler.RegisterPublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(tokenAuth))
			r.Use(jwtauth.Authenticator(tokenAuth))
			r.Use(client.AuthUserMiddleware)
			r.Use(ratelimit.NewMiddleware(userLimits).Handler)
			handler.RegisterRoutes(r)
		})
	})

	server.Run()
}
