package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kyver-Studios/Kyver-Invoices/internal/store/postgres"
)

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the invoices and payment_events tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			pool, err := postgres.NewPool(ctx, postgres.PoolConfig{URL: a.cfg.Common.GetDBURL(), MaxConns: 1})
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.Migrate(ctx, pool); err != nil {
				return err
			}
			a.logger.Info("schema applied")
			return nil
		},
	}
}
