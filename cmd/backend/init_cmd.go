package main

import (
	"context"
	"fmt"

	"github.com/ErlanBelekov/dist-job-scheduler/config"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/infrastructure/postgres/migrations"
	"github.com/spf13/cobra"
)

func newInitCommand() *cobra.Command {
	var emailAddr, password string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Bootstrap the first admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if emailAddr == "" || password == "" {
				return fmt.Errorf("%w: --email and --password are required", errConfig)
			}
			return runInit(cmd.Context(), emailAddr, password)
		},
	}

	cmd.Flags().StringVar(&emailAddr, "email", "", "admin email address")
	cmd.Flags().StringVar(&password, "password", "", "admin password")

	return cmd
}

func runInit(ctx context.Context, emailAddr, password string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	identitySvc := newIdentityService(cfg, pool, logger)

	user, err := identitySvc.Bootstrap(ctx, emailAddr, password)
	if err != nil {
		if appErr, ok := apperr.As(err); ok && appErr.Kind == apperr.KindConflict {
			return fmt.Errorf("%w", errBootstrapExists)
		}
		return err
	}

	logger.Info("admin bootstrapped", "user_id", user.ID, "email", user.Email)
	fmt.Printf("admin created: %s (%s)\n", user.Email, user.ID)
	return nil
}
