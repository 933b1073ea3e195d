// internal/store/memory/memory.go

package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/payment"
)

// Store is an in-process implementation of the invoice store, the payment
// event store and the TxManager. Transactions are serialized by a single
// lock and rolled back by restoring a snapshot, which gives the same
// "one writer per invoice" guarantee as row locks in Postgres.
type Store struct {
	txMu sync.Mutex   // held for the lifetime of a transaction
	mu   sync.RWMutex // guards the maps

	invoices map[uuid.UUID]*invoice.Invoice
	events   map[eventKey]*payment.PaymentEvent
}

type eventKey struct {
	provider   invoice.Provider
	externalID string
}

type txKey struct{}

func NewStore() *Store {
	return &Store{
		invoices: make(map[uuid.UUID]*invoice.Invoice),
		events:   make(map[eventKey]*payment.PaymentEvent),
	}
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(bool)
	return ok
}

// RunInTx runs fn atomically. Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		} else if err != nil {
			s.restore(snapshot)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, true))
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

type snapshot struct {
	invoices map[uuid.UUID]*invoice.Invoice
	events   map[eventKey]*payment.PaymentEvent
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := snapshot{
		invoices: make(map[uuid.UUID]*invoice.Invoice, len(s.invoices)),
		events:   make(map[eventKey]*payment.PaymentEvent, len(s.events)),
	}
	for k, v := range s.invoices {
		snap.invoices[k] = v.Clone()
	}
	for k, v := range s.events {
		ev := *v
		snap.events[k] = &ev
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices = snap.invoices
	s.events = snap.events
}

// write makes sure mutations outside a transaction still take the tx lock,
// so a concurrent rollback can't erase them.
func (s *Store) write(ctx context.Context, fn func() error) error {
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// --- invoice.InvoiceStore ---

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	return s.write(ctx, func() error {
		if _, exists := s.invoices[inv.InvoiceID]; exists {
			return fmt.Errorf("invoice %s already exists", inv.InvoiceID)
		}
		s.invoices[inv.InvoiceID] = inv.Clone()
		return nil
	})
}

func (s *Store) GetInvoiceByID(ctx context.Context, invoiceID uuid.UUID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[invoiceID]
	if !ok {
		return nil, fmt.Errorf("invoice %s: %w", invoiceID, domainErr.ErrUnknownInvoice)
	}
	return inv.Clone(), nil
}

// GetInvoiceForUpdate relies on the transaction lock for exclusivity.
func (s *Store) GetInvoiceForUpdate(ctx context.Context, invoiceID uuid.UUID) (*invoice.Invoice, error) {
	return s.GetInvoiceByID(ctx, invoiceID)
}

func (s *Store) FindByProviderRefForUpdate(ctx context.Context, provider invoice.Provider, ref string) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invoices {
		if inv.Provider != provider {
			continue
		}
		if inv.ProviderRef == ref || (inv.PaymentRef != "" && inv.PaymentRef == ref) {
			return inv.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%s reference %s: %w", provider, ref, domainErr.ErrUnknownInvoice)
}

func (s *Store) FindByShortID(ctx context.Context, shortID string) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*invoice.Invoice
	for id, inv := range s.invoices {
		if strings.HasPrefix(id.String(), strings.ToLower(shortID)) {
			out = append(out, inv.Clone())
		}
	}
	return out, nil
}

func (s *Store) ListByPayer(ctx context.Context, payerID string, limit int) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*invoice.Invoice
	for _, inv := range s.invoices {
		if inv.PayerID == payerID {
			out = append(out, inv.Clone())
		}
	}
	// newest first
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListPendingSince(ctx context.Context, cutoff time.Time, after *invoice.PendingCursor, limit int) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*invoice.Invoice
	for _, inv := range s.invoices {
		if inv.Status != invoice.InvoicePending || inv.PendingSince == nil {
			continue
		}
		if !inv.PendingSince.After(cutoff) && after.After(inv) {
			out = append(out, inv.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.PendingSince.Equal(*b.PendingSince) {
			return a.PendingSince.Before(*b.PendingSince)
		}
		return a.InvoiceID.String() < b.InvoiceID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice, from invoice.InvoiceStatus) error {
	return s.write(ctx, func() error {
		current, ok := s.invoices[inv.InvoiceID]
		if !ok {
			return fmt.Errorf("invoice %s: %w", inv.InvoiceID, domainErr.ErrUnknownInvoice)
		}
		if current.Status != from {
			return fmt.Errorf("%w: expected %s, found %s", domainErr.ErrInvalidTransition, from, current.Status)
		}
		s.invoices[inv.InvoiceID] = inv.Clone()
		return nil
	})
}

// --- payment.EventStore ---

func (s *Store) InsertEvent(ctx context.Context, ev *payment.PaymentEvent) (bool, error) {
	inserted := false
	err := s.write(ctx, func() error {
		key := eventKey{provider: ev.Provider, externalID: ev.ExternalEventID}
		if _, exists := s.events[key]; exists {
			return nil
		}
		cp := *ev
		s.events[key] = &cp
		inserted = true
		return nil
	})
	return inserted, err
}

func (s *Store) GetEvent(ctx context.Context, provider invoice.Provider, externalID string) (*payment.PaymentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[eventKey{provider: provider, externalID: externalID}]
	if !ok {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

func (s *Store) ListEventsForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*payment.PaymentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*payment.PaymentEvent
	for _, ev := range s.events {
		if ev.InvoiceID == invoiceID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}
