// internal/store/postgres/invoice_store.postgres.go

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
)

type PostgresInvoiceStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration // bounds statements run outside a transaction
}

func NewPostgresInvoiceStore(pool *pgxpool.Pool, timeout time.Duration) *PostgresInvoiceStore {
	return &PostgresInvoiceStore{pool: pool, timeout: timeout}
}

const invoiceColumns = `
	invoice_id, payer_id, created_by, channel_id, amount_minor, currency, description, status,
	provider, provider_ref, payment_ref, payment_url, invoice_channel_id, card_message_id,
	created_at, updated_at, pending_since, paid_at`

func (store *PostgresInvoiceStore) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	q, ctx, cancel := conn(ctx, store.pool, store.timeout)
	defer cancel()
	_, err := q.Exec(ctx, query,
		inv.InvoiceID,
		inv.PayerID,
		inv.CreatedBy,
		inv.ChannelID,
		inv.AmountMinor,
		inv.Currency,
		inv.Description,
		string(inv.Status),
		nullString(string(inv.Provider)),
		nullString(inv.ProviderRef),
		nullString(inv.PaymentRef),
		nullString(inv.PaymentURL),
		nullString(inv.InvoiceChannelID),
		nullString(inv.CardMessageID),
		inv.CreatedAt,
		inv.UpdatedAt,
		inv.PendingSince,
		inv.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", classify(err))
	}
	return nil
}

func (store *PostgresInvoiceStore) GetInvoiceByID(ctx context.Context, invoiceID uuid.UUID) (*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE invoice_id = $1`
	return store.getOne(ctx, query, invoiceID)
}

func (store *PostgresInvoiceStore) GetInvoiceForUpdate(ctx context.Context, invoiceID uuid.UUID) (*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE invoice_id = $1 FOR UPDATE`
	return store.getOne(ctx, query, invoiceID)
}

func (store *PostgresInvoiceStore) FindByProviderRefForUpdate(ctx context.Context, provider invoice.Provider, ref string) (*invoice.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE provider = $1 AND (provider_ref = $2 OR payment_ref = $2)
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE`
	return store.getOne(ctx, query, string(provider), ref)
}

func (store *PostgresInvoiceStore) FindByShortID(ctx context.Context, shortID string) ([]*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE left(invoice_id::text, 8) = $1`
	return store.getMany(ctx, query, shortID)
}

func (store *PostgresInvoiceStore) ListByPayer(ctx context.Context, payerID string, limit int) ([]*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE payer_id = $1 ORDER BY created_at DESC LIMIT $2`
	return store.getMany(ctx, query, payerID, limit)
}

func (store *PostgresInvoiceStore) ListPendingSince(ctx context.Context, cutoff time.Time, after *invoice.PendingCursor, limit int) ([]*invoice.Invoice, error) {
	if after == nil {
		query := `
			SELECT ` + invoiceColumns + `
			FROM invoices
			WHERE status = $1 AND pending_since <= $2
			ORDER BY pending_since ASC, invoice_id ASC
			LIMIT $3`
		return store.getMany(ctx, query, string(invoice.InvoicePending), cutoff, limit)
	}
	// Keyset paging: rows that stay PENDING never hold back the next page.
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE status = $1 AND pending_since <= $2
		  AND (pending_since, invoice_id) > ($3, $4)
		ORDER BY pending_since ASC, invoice_id ASC
		LIMIT $5`
	return store.getMany(ctx, query, string(invoice.InvoicePending), cutoff, after.PendingSince, after.InvoiceID, limit)
}

// UpdateInvoice writes the mutable columns only if the row is still in status from.
func (store *PostgresInvoiceStore) UpdateInvoice(ctx context.Context, inv *invoice.Invoice, from invoice.InvoiceStatus) error {
	query := `
		UPDATE invoices
		SET status = $2, provider = $3, provider_ref = $4, payment_ref = $5, payment_url = $6,
		    invoice_channel_id = $7, card_message_id = $8,
		    pending_since = $9, paid_at = $10, updated_at = $11
		WHERE invoice_id = $1 AND status = $12`

	q, ctx, cancel := conn(ctx, store.pool, store.timeout)
	defer cancel()
	tag, err := q.Exec(ctx, query,
		inv.InvoiceID,
		string(inv.Status),
		nullString(string(inv.Provider)),
		nullString(inv.ProviderRef),
		nullString(inv.PaymentRef),
		nullString(inv.PaymentURL),
		nullString(inv.InvoiceChannelID),
		nullString(inv.CardMessageID),
		inv.PendingSince,
		inv.PaidAt,
		inv.UpdatedAt,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", classify(err))
	}
	// If 0 rows, either ID is wrong OR status is not the one we read.
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: invoice %s is no longer %s", domainErr.ErrInvalidTransition, inv.InvoiceID, from)
	}
	return nil
}

func (store *PostgresInvoiceStore) getOne(ctx context.Context, query string, args ...any) (*invoice.Invoice, error) {
	q, ctx, cancel := conn(ctx, store.pool, store.timeout)
	defer cancel()
	inv, err := scanInvoice(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invoice lookup %v: %w", args, domainErr.ErrUnknownInvoice)
		}
		return nil, fmt.Errorf("failed to fetch invoice: %w", classify(err))
	}
	return inv, nil
}

func (store *PostgresInvoiceStore) getMany(ctx context.Context, query string, args ...any) ([]*invoice.Invoice, error) {
	q, ctx, cancel := conn(ctx, store.pool, store.timeout)
	defer cancel()
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", classify(err))
	}
	defer rows.Close()

	var out []*invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", classify(err))
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invoices: %w", classify(err))
	}
	return out, nil
}

func scanInvoice(row pgx.Row) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	var status string
	// Nullable columns scan into pointers
	var provider, providerRef, paymentRef, paymentURL, channelID, messageID *string
	err := row.Scan(
		&inv.InvoiceID,
		&inv.PayerID,
		&inv.CreatedBy,
		&inv.ChannelID,
		&inv.AmountMinor,
		&inv.Currency,
		&inv.Description,
		&status,
		&provider,
		&providerRef,
		&paymentRef,
		&paymentURL,
		&channelID,
		&messageID,
		&inv.CreatedAt,
		&inv.UpdatedAt,
		&inv.PendingSince,
		&inv.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Status = invoice.InvoiceStatus(status)
	inv.Provider = invoice.Provider(deref(provider))
	inv.ProviderRef = deref(providerRef)
	inv.PaymentRef = deref(paymentRef)
	inv.PaymentURL = deref(paymentURL)
	inv.InvoiceChannelID = deref(channelID)
	inv.CardMessageID = deref(messageID)
	return &inv, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
