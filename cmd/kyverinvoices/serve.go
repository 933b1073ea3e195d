package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/Kyver-Studios/Kyver-Invoices/internal/chat"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/chat/discord"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/health"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/notify"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/payment"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/payment/webhook"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/qrcode"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func serveCmd(a *app) *cobra.Command {
	var inMemory, migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the webhook server, the expiry sweeper and the health service",
		Long: `Run everything the bot needs in one process.

Examples:
  kyverinvoices serve
  kyverinvoices serve --migrate
  kyverinvoices serve --in-memory --config dev.yml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a, inMemory, migrate)
		},
	}
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "keep invoices in memory instead of PostgreSQL (development only)")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before starting")
	return cmd
}

func runServe(ctx context.Context, a *app, inMemory, migrate bool) error {
	cfg, logger := a.cfg, a.logger
	if err := cfg.RequireBot(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Storage
	b, err := openBackend(ctx, cfg, inMemory, migrate, logger)
	if err != nil {
		return err
	}
	defer b.close()
	ledger := buildLedger(b, cfg, logger)

	// 2. Payment providers
	gateways, pp, err := buildGateways(ctx, cfg)
	if err != nil {
		return err
	}
	payments := payment.NewPaymentService(ledger, logger, gateways...)

	// 3. Chat session first: the notifier chain ends in it.
	session, err := discord.NewSession(cfg.Discord.Token, cfg.Discord.GuildID, logger)
	if err != nil {
		return err
	}
	session.WithInvoiceChannels(cfg.Discord.InvoiceCategoryID, cfg.Discord.AdminRoleID)
	chatNotifier := notify.NewChatNotifier(session, logger).WithProviders(payments.Providers())

	g, gctx := errgroup.WithContext(ctx)
	chain, err := buildNotifierChain(gctx, g, cfg, chatNotifier, logger)
	if err != nil {
		return err
	}
	defer chain.Close(logger)
	abort := func(err error) error {
		stop()
		_ = g.Wait()
		return err
	}

	// 4. Core
	reconciler := payment.NewReconciler(ledger, b.events, b.tx, chain.entry, logger)
	gateway := chat.NewGateway(ledger, payments, qrcode.Render, chain.entry, chat.GatewayConfig{
		AdminRoleID:     cfg.Discord.AdminRoleID,
		DefaultCurrency: cfg.Invoice.DefaultCurrency,
		CommandTimeout:  cfg.Invoice.CommandTimeout,
	}, logger)
	if cfg.Discord.InvoiceCategoryID != "" {
		gateway.WithInvoiceChannels(session)
		logger.Info("invoices get private channels", "category", cfg.Discord.InvoiceCategoryID)
	}

	if err := session.Open(gctx, discord.NewDispatcher(gateway, logger), payments.Providers()); err != nil {
		return abort(err)
	}
	g.Go(func() error {
		<-gctx.Done()
		return session.Close()
	})

	// 5. Webhooks
	router := webhook.NewRouter(webhook.NewHandler(reconciler, logger, buildProcessors(cfg, pp, logger)...))
	srv := webhook.NewServer(cfg.HTTPAddr, router)
	g.Go(func() error {
		logger.Info("webhook server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("webhook server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	// 6. Expiry sweeper
	sweeper := worker.NewExpirySweeper(ledger, payments, reconciler, chain.entry, logger)
	sweeper.Interval = cfg.Sweeper.Interval
	sweeper.BatchSize = cfg.Sweeper.BatchSize
	sweeper.WorkerCount = cfg.Sweeper.Workers
	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})

	// 7. Health
	checker := health.NewChecker(b.pinger, logger)
	grpcServer := grpc.NewServer()
	checker.Register(grpcServer)
	lis, err := net.Listen("tcp", cfg.HealthAddr)
	if err != nil {
		return abort(fmt.Errorf("failed to listen on %s: %w", cfg.HealthAddr, err))
	}
	g.Go(func() error {
		checker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("health service listening", "addr", cfg.HealthAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		grpcServer.GracefulStop()
		return nil
	})

	logger.Info("kyver invoices running", "version", Version, "providers", payments.Providers())
	err = g.Wait()
	logger.Info("kyver invoices stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
