//go:build integration

// Run with a disposable database:
//
//	KYVER_TEST_DATABASE_URL=postgres://localhost:5432/kyver_test?sslmode=disable go test -tags integration ./internal/store/postgres/
package postgres_test

import (
	"context"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/payment"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/store/postgres"
	"github.com/Kyver-Studios/Kyver-Invoices/shared/contracts"
)

type pgEnv struct {
	pool     *pgxpool.Pool
	invoices *postgres.PostgresInvoiceStore
	events   *postgres.PaymentEventStore
	tx       *postgres.TxManager
	ledger   *invoice.Ledger
}

func setup(t *testing.T) *pgEnv {
	t.Helper()
	url := os.Getenv("KYVER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("KYVER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{URL: url, MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(ctx, pool))
	_, err = pool.Exec(ctx, "TRUNCATE payment_events, invoices")
	require.NoError(t, err)

	env := &pgEnv{
		pool:     pool,
		invoices: postgres.NewPostgresInvoiceStore(pool, 5*time.Second),
		events:   postgres.NewPaymentEventStore(pool, 5*time.Second),
		tx:       postgres.NewTxManager(pool, postgres.TxOptions{AcquireTimeout: 5 * time.Second, MaxRetries: 10}, nil),
	}
	env.ledger = invoice.NewLedger(env.invoices, env.tx, time.Hour, nil)
	return env
}

func (e *pgEnv) pending(t *testing.T, ref string) *invoice.Invoice {
	t.Helper()
	ctx := context.Background()
	inv, err := e.ledger.Create(ctx, invoice.CreateParams{PayerID: "payer-1", CreatedBy: "admin-1", AmountMinor: 1000, Currency: "USD"})
	require.NoError(t, err)
	res, err := e.ledger.MarkPending(ctx, inv.InvoiceID, invoice.Checkout{Provider: invoice.ProviderStripe, Reference: ref, URL: "https://checkout.stripe.com/" + ref})
	require.NoError(t, err)
	return res.Invoice
}

type countingNotifier struct {
	mu sync.Mutex
	n  int
}

func (c *countingNotifier) Notify(context.Context, contracts.InvoiceEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return nil
}

func TestConcurrentDeliveriesPayOnce(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	inv := env.pending(t, "cs_concurrent")
	n := &countingNotifier{}
	rec := payment.NewReconciler(env.ledger, env.events, env.tx, n, nil)

	// Twin deliveries of one event plus distinct events for the same session.
	evs := make([]payment.NormalizedEvent, 0, 8)
	for i := 0; i < 4; i++ {
		evs = append(evs, payment.NormalizedEvent{
			Provider: invoice.ProviderStripe, ExternalEventID: "evt_same", ProviderReference: "cs_concurrent",
			PaymentReference: "pi_1", Outcome: invoice.OutcomeSucceeded, OccurredAt: time.Now(),
		})
		evs = append(evs, payment.NormalizedEvent{
			Provider: invoice.ProviderStripe, ExternalEventID: "evt_" + uuid.NewString(), ProviderReference: "cs_concurrent",
			PaymentReference: "pi_1", Outcome: invoice.OutcomeSucceeded, OccurredAt: time.Now(),
		})
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for _, ev := range evs {
		wg.Add(1)
		go func(ev payment.NormalizedEvent) {
			defer wg.Done()
			out, err := rec.Handle(ctx, ev)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, invoice.InvoicePaid, out.Status)
			if out.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(ev)
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, n.n)

	got, err := env.ledger.Get(ctx, inv.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, invoice.InvoicePaid, got.Status)
	assert.Equal(t, "pi_1", got.PaymentRef)

	recorded, err := env.events.ListEventsForInvoice(ctx, inv.InvoiceID)
	require.NoError(t, err)
	assert.Len(t, recorded, 5, "one row per distinct external event id")
}

func TestUpdateInvoiceChecksStatus(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	inv := env.pending(t, "cs_cas")

	stale := inv.Clone()
	stale.Status = invoice.InvoiceCancelled
	err := env.invoices.UpdateInvoice(ctx, stale, invoice.InvoiceDraft)
	assert.ErrorIs(t, err, domainErr.ErrInvalidTransition)

	require.NoError(t, env.invoices.UpdateInvoice(ctx, stale, invoice.InvoicePending))
	got, err := env.invoices.GetInvoiceByID(ctx, inv.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, invoice.InvoiceCancelled, got.Status)
}

func TestInsertEventIsIdempotent(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	inv := env.pending(t, "cs_events")

	ev := &payment.PaymentEvent{
		EventID: uuid.New(), Provider: invoice.ProviderStripe, ExternalEventID: "evt_once",
		InvoiceID: inv.InvoiceID, Outcome: invoice.OutcomeSucceeded, ResultingStatus: invoice.InvoicePaid,
		ReceivedAt: time.Now().UTC(),
	}
	inserted, err := env.events.InsertEvent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	again := *ev
	again.EventID = uuid.New()
	inserted, err = env.events.InsertEvent(ctx, &again)
	require.NoError(t, err)
	assert.False(t, inserted)

	prior, err := env.events.GetEvent(ctx, invoice.ProviderStripe, "evt_once")
	require.NoError(t, err)
	require.NotNil(t, prior)
	assert.Equal(t, ev.EventID, prior.EventID)
}

func TestFindByReferenceLocksRow(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	inv := env.pending(t, "cs_lock")

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- env.tx.RunInTx(ctx, func(ctx context.Context) error {
			if _, err := env.invoices.FindByProviderRefForUpdate(ctx, invoice.ProviderStripe, "cs_lock"); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	// A second locker waits for the first transaction.
	waited := make(chan time.Duration, 1)
	go func() {
		start := time.Now()
		_ = env.tx.RunInTx(ctx, func(ctx context.Context) error {
			_, err := env.invoices.GetInvoiceForUpdate(ctx, inv.InvoiceID)
			return err
		})
		waited <- time.Since(start)
	}()
	time.Sleep(200 * time.Millisecond)
	close(release)
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, <-waited, 150*time.Millisecond)

	_, err := env.invoices.FindByProviderRefForUpdate(ctx, invoice.ProviderStripe, "cs_missing")
	assert.ErrorIs(t, err, domainErr.ErrUnknownInvoice)
}

func TestListPendingSincePagesByCursor(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	since := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Microsecond)

	var ids []string
	for i := 0; i < 3; i++ {
		inv := &invoice.Invoice{
			InvoiceID: uuid.New(), PayerID: "payer-1", AmountMinor: 100, Currency: "USD",
			Status: invoice.InvoicePending, Provider: invoice.ProviderStripe, ProviderRef: "cs_page_" + uuid.NewString(),
			CreatedAt: since, UpdatedAt: since, PendingSince: &since,
		}
		require.NoError(t, env.invoices.CreateInvoice(ctx, inv))
		ids = append(ids, inv.InvoiceID.String())
	}
	sort.Strings(ids)

	first, err := env.invoices.ListPendingSince(ctx, since, nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, ids[:2], []string{first[0].InvoiceID.String(), first[1].InvoiceID.String()})

	second, err := env.invoices.ListPendingSince(ctx, since, invoice.CursorAt(first[1]), 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, ids[2], second[0].InvoiceID.String())
}

func TestStandaloneStatementsGiveUp(t *testing.T) {
	env := setup(t)
	store := postgres.NewPostgresInvoiceStore(env.pool, time.Nanosecond)
	_, err := store.GetInvoiceByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domainErr.ErrStoreUnavailable)
}
