package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/devtoolkit/auth-service/internal/ai"
	"github.com/devtoolkit/auth-service/internal/config"
	"github.com/devtoolkit/auth-service/internal/handler"
	"github.com/devtoolkit/auth-service/internal/mailer"
	"github.com/devtoolkit/auth-service/internal/repository"
	"github.com/devtoolkit/auth-service/internal/service"
	"github.com/devtoolkit/auth-service/pkg/token"
)

func main() {
	cfg := config.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "auth-service").
		Logger()
	if !cfg.IsProduction() {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("Connecting to database")
	store, err := repository.NewManager(ctx, cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()
	log.Info().Msg("Database ready")

	var mail mailer.Dispatcher
	if cfg.SMTP.Host != "" {
		mail = mailer.NewSMTPDispatcher(cfg.SMTP)
		log.Info().Str("host", cfg.SMTP.Host).Msg("Using SMTP mail dispatcher")
	} else {
		mail = mailer.NewLogDispatcher(log)
		log.Warn().Msg("SMTP not configured, emails will only be logged")
	}

	provider := ai.NewOpenAIProvider(cfg.AI)
	codec := token.NewCodec(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	activity := service.NewActivityLogger(store.Activity(), log)

	authSvc := service.NewAuthService(store.Users(), store.Sessions(), activity, codec, mail, cfg, log)
	usageSvc := service.NewUsageService(store.Users(), activity, log)
	adminSvc := service.NewAdminService(store.Users(), store.Sessions(), activity, log)
	suggestionSvc := service.NewSuggestionService(store.Suggestions(), store.Users(), activity, mail, log)
	generateSvc := service.NewGenerateService(usageSvc, provider, log)

	h := handler.New(authSvc, usageSvc, adminSvc, suggestionSvc, generateSvc, activity, codec, cfg, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      h.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go runMaintenance(ctx, authSvc, activity, log)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}

	log.Info().Msg("Server stopped")
}

// runMaintenance periodically drops expired sessions and activity entries
// older than the retention window.
func runMaintenance(ctx context.Context, auth *service.AuthService, activity *service.ActivityLogger, log zerolog.Logger) {
	const retention = 90 * 24 * time.Hour

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := auth.PurgeExpiredSessions(ctx); err != nil {
				log.Error().Err(err).Msg("Session cleanup failed")
			} else if n > 0 {
				log.Info().Int64("removed", n).Msg("Expired sessions removed")
			}

			if n, err := activity.PurgeOlderThan(ctx, time.Now().Add(-retention)); err != nil {
				log.Error().Err(err).Msg("Activity cleanup failed")
			} else if n > 0 {
				log.Info().Int64("removed", n).Msg("Old activity entries removed")
			}
		}
	}
}
