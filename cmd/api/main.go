package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ovaphlow/worknest/service-core-go/internal/audit"
	"github.com/ovaphlow/worknest/service-core-go/internal/config"
	"github.com/ovaphlow/worknest/service-core-go/internal/store/pgstore"
	"github.com/ovaphlow/worknest/service-core-go/pkg/database"
	"github.com/ovaphlow/worknest/service-core-go/pkg/utilities"
)

var rootCmd = &cobra.Command{
	Use:           "worknest-api",
	Short:         "WorkNest organization and user management API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app is what every command needs: configuration, a logger and the store.
type app struct {
	cfg   config.Config
	lg    *zap.Logger
	sugar *zap.SugaredLogger
	db    *sqlx.DB
	store *pgstore.Store
	audit audit.Logger
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	sugar := lg.Sugar()

	db, err := database.Connect(database.Config{
		DSN:            cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		TimeZone:       cfg.Database.TimeZone,
		ClientEncoding: cfg.Database.ClientEncoding,
	})
	if err != nil {
		_ = lg.Sync()
		return nil, fmt.Errorf("db connect: %w", err)
	}
	return &app{
		cfg:   cfg,
		lg:    lg,
		sugar: sugar,
		db:    db,
		store: pgstore.New(db),
		audit: audit.NewZapLogger(sugar.Named("audit")),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.sugar.Warnf("db close: %v", err)
	}
	_ = a.lg.Sync()
}

// withApp runs fn with a fresh app and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a)
	}
}
