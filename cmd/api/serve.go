package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ovaphlow/worknest/service-core-go/internal/auth"
	"github.com/ovaphlow/worknest/service-core-go/internal/invite"
	"github.com/ovaphlow/worknest/service-core-go/internal/mail"
	"github.com/ovaphlow/worknest/service-core-go/internal/organization"
	"github.com/ovaphlow/worknest/service-core-go/internal/router"
	"github.com/ovaphlow/worknest/service-core-go/internal/user"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  withApp(runServe),
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "create missing tables before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ context.Context, a *app) error {
	sugar := a.sugar
	sugar.Info("starting worknest api")

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveMigrate {
		if err := a.store.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	tokens, err := auth.NewTokenService(a.cfg.JWT.Secret, a.cfg.TokenTTL())
	if err != nil {
		return err
	}
	hasher := user.BcryptHasher{Cost: user.DefaultCost}
	sender := mail.New(mail.Config{
		Host:     a.cfg.SMTP.Host,
		Port:     a.cfg.SMTP.Port,
		User:     a.cfg.SMTP.User,
		Password: a.cfg.SMTP.Password,
		From:     a.cfg.SMTP.From,
	}, sugar.Named("mail"))

	authSvc := auth.NewService(a.store, hasher, tokens, sender, a.audit, sugar, a.cfg.ClientURL)
	limiter := auth.NewRateLimiter()
	handler := router.RegisterRoutes(sugar, router.Deps{
		Auth:          authSvc,
		Users:         user.NewService(a.store, hasher, a.audit, sugar),
		Organizations: organization.NewService(a.store, hasher, a.audit, sugar),
		Invites:       invite.NewService(a.store, sender, hasher, a.audit, sugar, a.cfg.ClientURL),
		Limiter:       limiter,
		Origins:       a.cfg.AllowedOrigins(),
		Dev:           a.cfg.IsDevelopment(),
	})
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go sweepLimiter(ctx, limiter)

	errc := make(chan error, 1)
	go func() {
		sugar.Infow("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	authSvc.Wait()

	sugar.Info("goodbye")
	return nil
}

// sweepLimiter drops stale rate limit entries until ctx ends.
func sweepLimiter(ctx context.Context, rl *auth.RateLimiter) {
	t := time.NewTicker(10 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rl.Cleanup(time.Hour)
		}
	}
}
