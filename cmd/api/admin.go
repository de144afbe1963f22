package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ovaphlow/worknest/service-core-go/internal/invite"
	"github.com/ovaphlow/worknest/service-core-go/internal/mail"
	"github.com/ovaphlow/worknest/service-core-go/internal/user"
	"github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create missing tables and indexes",
	RunE: withApp(func(ctx context.Context, a *app) error {
		if err := a.store.EnsureSchema(ctx); err != nil {
			return err
		}
		a.sugar.Info("schema is up to date")
		return nil
	}),
}

var invitesCmd = &cobra.Command{
	Use:   "invites",
	Short: "Invite maintenance",
}

var invitesCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete unaccepted invites past their expiry",
	RunE: withApp(func(ctx context.Context, a *app) error {
		svc := invite.NewService(a.store, mail.NewLogSender(a.sugar), nil, a.audit, a.sugar, a.cfg.ClientURL)
		n, err := svc.CleanupExpired(ctx)
		if err != nil {
			return err
		}
		a.sugar.Infow("expired invites deleted", "count", n)
		return nil
	}),
}

var superadmin struct {
	email    string
	name     string
	password string
}

var superadminCmd = &cobra.Command{
	Use:   "superadmin",
	Short: "Superadmin accounts",
}

var superadminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a superadmin account",
	RunE: withApp(func(ctx context.Context, a *app) error {
		if superadmin.email == "" || superadmin.password == "" {
			return errors.New("--email and --password are required")
		}
		svc := user.NewService(a.store, nil, a.audit, a.sugar)
		u, err := svc.Create(ctx, user.System, user.CreateInput{
			FullName: superadmin.name,
			Email:    superadmin.email,
			Password: superadmin.password,
			Role:     entity.RoleSuperadmin,
		})
		if err != nil {
			return err
		}
		fmt.Printf("superadmin %s created with id %s\n", u.Email, u.ID)
		return nil
	}),
}

func init() {
	superadminCreateCmd.Flags().StringVar(&superadmin.email, "email", "", "login email")
	superadminCreateCmd.Flags().StringVar(&superadmin.name, "name", "Super Admin", "full name")
	superadminCreateCmd.Flags().StringVar(&superadmin.password, "password", "", "initial password (min 6 characters)")

	invitesCmd.AddCommand(invitesCleanupCmd)
	superadminCmd.AddCommand(superadminCreateCmd)
	rootCmd.AddCommand(migrateCmd, invitesCmd, superadminCmd)
}
