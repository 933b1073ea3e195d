package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Kyver-Studios/Kyver-Invoices/internal/payment"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/worker"
)

// sweepCmd runs one expiry pass, for cron or for catching up after downtime.
// Notifications are handed to the configured stream or queue; without either
// they are dropped since this process has no chat session.
func sweepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire stale pending invoices once and recover missed payments",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger := a.cfg, a.logger

			b, err := openBackend(ctx, cfg, false, false, logger)
			if err != nil {
				return err
			}
			defer b.close()
			ledger := buildLedger(b, cfg, logger)

			gateways, _, err := buildGateways(ctx, cfg)
			if err != nil {
				return err
			}
			payments := payment.NewPaymentService(ledger, logger, gateways...)

			g, gctx := errgroup.WithContext(ctx)
			chain, err := buildNotifierChain(gctx, g, cfg, nil, logger)
			if err != nil {
				return err
			}
			defer chain.Close(logger)

			reconciler := payment.NewReconciler(ledger, b.events, b.tx, chain.entry, logger)
			sweeper := worker.NewExpirySweeper(ledger, payments, reconciler, chain.entry, logger)
			sweeper.BatchSize = cfg.Sweeper.BatchSize
			sweeper.WorkerCount = cfg.Sweeper.Workers

			summary, err := sweeper.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, expired %d, paid %d, skipped %d\n",
				summary.Scanned, summary.Expired, summary.Paid, summary.Skipped)
			return g.Wait()
		},
	}
}
