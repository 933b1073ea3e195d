// internal/store/postgres/payment_event_store.postgres.go

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/payment"
)

type PaymentEventStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration // bounds statements run outside a transaction
}

func NewPaymentEventStore(pool *pgxpool.Pool, timeout time.Duration) *PaymentEventStore {
	return &PaymentEventStore{pool: pool, timeout: timeout}
}

const eventColumns = `event_id, provider, external_event_id, invoice_id, outcome, resulting_status, payment_ref, received_at`

// InsertEvent relies on the (provider, external_event_id) unique constraint.
// A conflicting row is left alone and reported as not inserted.
func (s *PaymentEventStore) InsertEvent(ctx context.Context, ev *payment.PaymentEvent) (bool, error) {
	query := `
		INSERT INTO payment_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider, external_event_id) DO NOTHING`

	q, ctx, cancel := conn(ctx, s.pool, s.timeout)
	defer cancel()
	tag, err := q.Exec(ctx, query,
		ev.EventID,
		string(ev.Provider),
		ev.ExternalEventID,
		ev.InvoiceID,
		string(ev.Outcome),
		string(ev.ResultingStatus),
		nullString(ev.PaymentRef),
		ev.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record payment event: %w", classify(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PaymentEventStore) GetEvent(ctx context.Context, provider invoice.Provider, externalID string) (*payment.PaymentEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM payment_events WHERE provider = $1 AND external_event_id = $2`
	q, ctx, cancel := conn(ctx, s.pool, s.timeout)
	defer cancel()
	ev, err := scanEvent(q.QueryRow(ctx, query, string(provider), externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found is not an error here, just nil
		}
		return nil, fmt.Errorf("failed to fetch payment event: %w", classify(err))
	}
	return ev, nil
}

func (s *PaymentEventStore) ListEventsForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*payment.PaymentEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM payment_events WHERE invoice_id = $1 ORDER BY received_at`
	q, ctx, cancel := conn(ctx, s.pool, s.timeout)
	defer cancel()
	rows, err := q.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment events: %w", classify(err))
	}
	defer rows.Close()

	var out []*payment.PaymentEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment event: %w", classify(err))
		}
		out = append(out, ev)
	}
	return out, classify(rows.Err())
}

func scanEvent(row pgx.Row) (*payment.PaymentEvent, error) {
	var ev payment.PaymentEvent
	var provider, outcome, status string
	var paymentRef *string
	if err := row.Scan(
		&ev.EventID,
		&provider,
		&ev.ExternalEventID,
		&ev.InvoiceID,
		&outcome,
		&status,
		&paymentRef,
		&ev.ReceivedAt,
	); err != nil {
		return nil, err
	}
	ev.Provider = invoice.Provider(provider)
	ev.Outcome = invoice.PaymentOutcome(outcome)
	ev.ResultingStatus = invoice.InvoiceStatus(status)
	ev.PaymentRef = deref(paymentRef)
	return &ev, nil
}
