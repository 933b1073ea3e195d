package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/store/memory"
	"github.com/Kyver-Studios/Kyver-Invoices/shared/contracts"
)

const adminRole = "role-admin"

// fakePayments moves invoices to PENDING through the real ledger.
type fakePayments struct {
	ledger    *invoice.Ledger
	providers []invoice.Provider
	err       error
	cancelled []string
}

func (f *fakePayments) Providers() []invoice.Provider { return f.providers }

func (f *fakePayments) StartPayment(ctx context.Context, id uuid.UUID, p invoice.Provider) (*invoice.Invoice, error) {
	if f.err != nil {
		return nil, f.err
	}
	inv, err := f.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == invoice.InvoicePending {
		return inv, nil
	}
	res, err := f.ledger.MarkPending(ctx, id, invoice.Checkout{Provider: p, Reference: "ref_" + inv.ShortID(), URL: "https://pay.example.com/" + inv.ShortID()})
	if res != nil {
		return res.Invoice, err
	}
	return nil, err
}

func (f *fakePayments) CancelCheckout(ctx context.Context, inv *invoice.Invoice) {
	f.cancelled = append(f.cancelled, inv.ProviderRef)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []contracts.InvoiceEvent
}

func (f *fakeNotifier) Notify(ctx context.Context, ev contracts.InvoiceEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

type testEnv struct {
	gw       *Gateway
	ledger   *invoice.Ledger
	payments *fakePayments
	notifier *fakeNotifier
}

func newEnv(t *testing.T, render Renderer) *testEnv {
	t.Helper()
	st := memory.NewStore()
	ledger := invoice.NewLedger(st, st, time.Hour, nil)
	payments := &fakePayments{ledger: ledger, providers: []invoice.Provider{invoice.ProviderStripe}}
	n := &fakeNotifier{}
	if render == nil {
		render = func(uri string) ([]byte, error) { return []byte("\x89PNG fake"), nil }
	}
	gw := NewGateway(ledger, payments, render, n, GatewayConfig{AdminRoleID: adminRole, DefaultCurrency: "USD"}, nil)
	return &testEnv{gw: gw, ledger: ledger, payments: payments, notifier: n}
}

var (
	admin    = Caller{UserID: "admin-1", RoleIDs: []string{"everyone", adminRole}, ChannelID: "chan-1"}
	payer    = Caller{UserID: "payer-1", RoleIDs: []string{"everyone"}, ChannelID: "chan-1"}
	stranger = Caller{UserID: "stranger", RoleIDs: []string{"everyone"}}
)

func (e *testEnv) createInvoice(t *testing.T) *invoice.Invoice {
	t.Helper()
	inv, err := e.ledger.Create(context.Background(), invoice.CreateParams{PayerID: payer.UserID, CreatedBy: admin.UserID, AmountMinor: 1250, Currency: "USD", Description: "Logo"})
	require.NoError(t, err)
	return inv
}

func isDenied(r Reply) bool {
	return r.Embed != nil && strings.Contains(r.Embed.Title, "Access Denied")
}

func isNotFound(r Reply) bool {
	return r.Embed != nil && strings.Contains(r.Embed.Title, "Not Found")
}

func TestCreateCommand(t *testing.T) {
	tests := []struct {
		name       string
		caller     Caller
		req        Request
		wantDenied bool
		wantError  string
	}{
		{
			name:   "admin role creates",
			caller: admin,
			req:    Request{PayerID: payer.UserID, Amount: "12.50", Description: "Logo"},
		},
		{
			name:   "guild administrator creates",
			caller: Caller{UserID: "owner", Administrator: true},
			req:    Request{PayerID: payer.UserID, Amount: "5", Currency: "eur"},
		},
		{
			name:       "member is denied",
			caller:     payer,
			req:        Request{PayerID: payer.UserID, Amount: "12.50"},
			wantDenied: true,
		},
		{
			name:      "zero amount",
			caller:    admin,
			req:       Request{PayerID: payer.UserID, Amount: "0"},
			wantError: "greater than zero",
		},
		{
			name:      "missing payer",
			caller:    admin,
			req:       Request{Amount: "10"},
			wantError: "valid user",
		},
		{
			name:      "bad currency",
			caller:    admin,
			req:       Request{PayerID: payer.UserID, Amount: "10", Currency: "dollars"},
			wantError: "3 letter code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t, nil)
			tt.req.Action = ActionCreate
			tt.req.Caller = tt.caller
			reply := env.gw.Handle(context.Background(), tt.req)
			require.NotNil(t, reply.Embed)

			if tt.wantDenied {
				assert.True(t, isDenied(reply))
				assert.Empty(t, env.notifier.events)
				return
			}
			if tt.wantError != "" {
				assert.Contains(t, reply.Embed.Description, tt.wantError)
				assert.Empty(t, env.notifier.events)
				return
			}
			assert.False(t, reply.Ephemeral, "the card is posted for the payer to see")
			assert.Contains(t, reply.Embed.Title, "Invoice #")
			assert.Contains(t, reply.Content, "<@payer-1>")
			require.Len(t, env.notifier.events, 1)
			assert.Equal(t, contracts.EventInvoiceCreated, env.notifier.events[0].Event)
			assert.Equal(t, "DRAFT", env.notifier.events[0].Status)

			var hasPay bool
			for _, b := range reply.Buttons {
				if strings.HasPrefix(b.CustomID, "pay:stripe:") {
					hasPay = true
				}
			}
			assert.True(t, hasPay)
		})
	}
}

func TestCreateStoresParsedAmount(t *testing.T) {
	env := newEnv(t, nil)
	env.gw.Handle(context.Background(), Request{Action: ActionCreate, Caller: admin, PayerID: payer.UserID, Amount: "100"})

	invs, err := env.ledger.ListByPayer(context.Background(), payer.UserID, 5)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, int64(10000), invs[0].AmountMinor)
	assert.Equal(t, "USD", invs[0].Currency)
}

func TestStatusPermissions(t *testing.T) {
	env := newEnv(t, nil)
	inv := env.createInvoice(t)

	for _, c := range []Caller{admin, payer} {
		reply := env.gw.Handle(context.Background(), Request{Action: ActionStatus, Caller: c, InvoiceRef: inv.ShortID()})
		require.NotNil(t, reply.Embed)
		assert.Equal(t, "📧 Invoice #"+inv.ShortID(), reply.Embed.Title, c.UserID)
		assert.True(t, reply.Ephemeral)
	}

	reply := env.gw.Handle(context.Background(), Request{Action: ActionStatus, Caller: stranger, InvoiceRef: inv.ShortID()})
	assert.False(t, isDenied(reply))
	assert.True(t, isNotFound(reply), "a stranger cannot tell the invoice exists")
}

func TestStrangerCannotTellInvoicesExist(t *testing.T) {
	env := newEnv(t, nil)
	inv := env.createInvoice(t)

	missing := env.gw.Handle(context.Background(), Request{Action: ActionStatus, Caller: stranger, InvoiceRef: "0badc0de"})
	existing := env.gw.Handle(context.Background(), Request{Action: ActionStatus, Caller: stranger, InvoiceRef: inv.ShortID()})
	require.NotNil(t, missing.Embed)
	require.NotNil(t, existing.Embed)
	assert.Equal(t, missing.Embed.Title, existing.Embed.Title)
	assert.Equal(t, missing.Embed.Description, existing.Embed.Description)

	for _, action := range []Action{ActionPay, ActionCancel} {
		reply := env.gw.Handle(context.Background(), Request{Action: action, Caller: stranger, InvoiceRef: inv.ShortID()})
		assert.True(t, isNotFound(reply), action)
	}
}

func TestStatusUnknownInvoice(t *testing.T) {
	env := newEnv(t, nil)
	reply := env.gw.Handle(context.Background(), Request{Action: ActionStatus, Caller: admin, InvoiceRef: uuid.NewString()})
	require.NotNil(t, reply.Embed)
	assert.Contains(t, reply.Embed.Title, "Not Found")
}

func TestPayCommand(t *testing.T) {
	env := newEnv(t, nil)
	inv := env.createInvoice(t)

	reply := env.gw.Handle(context.Background(), Request{Action: ActionPay, Caller: payer, InvoiceRef: inv.InvoiceID.String()})
	require.NotNil(t, reply.Embed)
	assert.Contains(t, reply.Content, "https://pay.example.com/"+inv.ShortID())
	require.NotNil(t, reply.Image)
	assert.Equal(t, "image/png", reply.Image.ContentType)
	assert.Equal(t, reply.Image.Name, reply.Embed.ImageName)

	got, err := env.ledger.Get(context.Background(), inv.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, invoice.InvoicePending, got.Status)
}

func TestPayStillRepliesWhenQRFails(t *testing.T) {
	env := newEnv(t, func(uri string) ([]byte, error) { return nil, domainErr.ErrEncoding })
	inv := env.createInvoice(t)

	reply := env.gw.Handle(context.Background(), Request{Action: ActionPay, Caller: payer, InvoiceRef: inv.ShortID()})
	assert.Nil(t, reply.Image)
	assert.Contains(t, reply.Content, "https://pay.example.com/")
	assert.Contains(t, reply.Content, "QR code could not be generated")

	got, err := env.ledger.Get(context.Background(), inv.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, invoice.InvoicePending, got.Status, "a failed render leaves the invoice valid")
}

func TestPayProviderSelection(t *testing.T) {
	env := newEnv(t, nil)
	inv := env.createInvoice(t)

	reply := env.gw.Handle(context.Background(), Request{Action: ActionPay, Caller: payer, InvoiceRef: inv.ShortID(), Provider: "paypal"})
	require.NotNil(t, reply.Embed)
	assert.Contains(t, reply.Embed.Title, "Provider Unavailable")

	env.payments.providers = []invoice.Provider{invoice.ProviderStripe, invoice.ProviderPayPal}
	reply = env.gw.Handle(context.Background(), Request{Action: ActionPay, Caller: payer, InvoiceRef: inv.ShortID()})
	assert.Contains(t, reply.Embed.Description, "choose a payment provider")
}

func TestPayTransientFailure(t *testing.T) {
	env := newEnv(t, nil)
	inv := env.createInvoice(t)
	env.payments.err = errors.Join(domainErr.ErrProviderUnavailable, errors.New("stripe 503"))

	reply := env.gw.Handle(context.Background(), Request{Action: ActionPay, Caller: payer, InvoiceRef: inv.ShortID()})
	require.NotNil(t, reply.Embed)
	assert.Contains(t, reply.Embed.Title, "Temporarily Unavailable")
}

func TestCancelCommand(t *testing.T) {
	env := newEnv(t, nil)
	inv := env.createInvoice(t)

	// Stranger cannot cancel
	reply := env.gw.Handle(context.Background(), Request{Action: ActionCancel, Caller: stranger, InvoiceRef: inv.ShortID()})
	assert.True(t, isNotFound(reply))

	// Start a payment, then cancel: the checkout is closed too.
	env.gw.Handle(context.Background(), Request{Action: ActionPay, Caller: payer, InvoiceRef: inv.ShortID()})
	reply = env.gw.Handle(context.Background(), Request{Action: ActionCancel, Caller: payer, InvoiceRef: inv.ShortID()})
	assert.Contains(t, reply.Content, "cancelled")
	assert.Equal(t, []string{"ref_" + inv.ShortID()}, env.payments.cancelled)

	got, err := env.ledger.Get(context.Background(), inv.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, invoice.InvoiceCancelled, got.Status)

	// Twice is fine
	reply = env.gw.Handle(context.Background(), Request{Action: ActionCancel, Caller: admin, InvoiceRef: inv.ShortID()})
	assert.Contains(t, reply.Content, "already cancelled")
	assert.Len(t, env.payments.cancelled, 1)
}

func TestCancelPaidInvoiceShowsState(t *testing.T) {
	env := newEnv(t, nil)
	inv := env.createInvoice(t)
	env.gw.Handle(context.Background(), Request{Action: ActionPay, Caller: payer, InvoiceRef: inv.ShortID()})
	_, err := env.ledger.ApplyPayment(context.Background(), inv.InvoiceID, invoice.OutcomeSucceeded, "pi_1")
	require.NoError(t, err)

	reply := env.gw.Handle(context.Background(), Request{Action: ActionCancel, Caller: admin, InvoiceRef: inv.ShortID()})
	require.NotNil(t, reply.Embed)
	assert.Contains(t, reply.Content, "can no longer be cancelled")
	assert.Contains(t, reply.Embed.Fields[2].Value, "PAID")
}

func TestListCommand(t *testing.T) {
	env := newEnv(t, nil)
	env.createInvoice(t)
	env.createInvoice(t)

	reply := env.gw.Handle(context.Background(), Request{Action: ActionList, Caller: payer})
	require.NotNil(t, reply.Embed)
	assert.Equal(t, 2, strings.Count(reply.Embed.Description, "12.50 USD"))

	reply = env.gw.Handle(context.Background(), Request{Action: ActionList, Caller: stranger, TargetUserID: payer.UserID})
	assert.True(t, isDenied(reply))

	reply = env.gw.Handle(context.Background(), Request{Action: ActionList, Caller: admin, TargetUserID: payer.UserID})
	require.NotNil(t, reply.Embed)
	assert.Contains(t, reply.Embed.Title, payer.UserID)

	reply = env.gw.Handle(context.Background(), Request{Action: ActionList, Caller: stranger})
	assert.Contains(t, reply.Content, "No invoices")
}

func TestParseButtonID(t *testing.T) {
	id := uuid.New()

	action, ref, provider, err := ParseButtonID(PayButtonID(invoice.ProviderPayPal, id))
	require.NoError(t, err)
	assert.Equal(t, ActionPay, action)
	assert.Equal(t, id.String(), ref)
	assert.Equal(t, "paypal", provider)

	action, ref, _, err = ParseButtonID(RefreshButtonID(id))
	require.NoError(t, err)
	assert.Equal(t, ActionStatus, action)
	assert.Equal(t, id.String(), ref)

	action, _, _, err = ParseButtonID(CancelButtonID(id))
	require.NoError(t, err)
	assert.Equal(t, ActionCancel, action)

	for _, tc := range []struct {
		build func(uuid.UUID) string
		want  Action
	}{
		{ResendButtonID, ActionResend},
		{RecreateButtonID, ActionRecreate},
		{CloseButtonID, ActionClose},
	} {
		action, ref, _, err = ParseButtonID(tc.build(id))
		require.NoError(t, err)
		assert.Equal(t, tc.want, action)
		assert.Equal(t, id.String(), ref)
	}

	_, _, _, err = ParseButtonID("delete:" + id.String())
	assert.Error(t, err)
}

func TestEventReply(t *testing.T) {
	ev := contracts.InvoiceEvent{Event: contracts.EventInvoiceStatusChanged, ShortID: "abcd1234", Status: "PAID", PreviousStatus: "PENDING", Amount: "1.00 USD"}
	r := EventReply(ev)
	require.NotNil(t, r.Embed)
	assert.Contains(t, r.Embed.Title, "paid")
	assert.Equal(t, ColorSuccess, r.Embed.Color)

	ev.Status, ev.PreviousStatus = "DRAFT", "PENDING"
	r = EventReply(ev)
	assert.Contains(t, r.Embed.Title, "Payment failed")
}

type fakeChannels struct {
	openErr error
	opened  []string
	cards   map[string]Reply
	closed  []string
}

func (f *fakeChannels) OpenInvoiceChannel(ctx context.Context, inv *invoice.Invoice) (string, error) {
	if f.openErr != nil {
		return "", f.openErr
	}
	id := "chan-" + inv.ShortID()
	f.opened = append(f.opened, id)
	return id, nil
}

func (f *fakeChannels) PostCard(ctx context.Context, channelID string, r Reply) (string, error) {
	if f.cards == nil {
		f.cards = map[string]Reply{}
	}
	f.cards[channelID] = r
	return "card-" + channelID, nil
}

func (f *fakeChannels) CloseInvoiceChannel(ctx context.Context, channelID string) error {
	f.closed = append(f.closed, channelID)
	return nil
}

func (e *testEnv) withChannels() *fakeChannels {
	ch := &fakeChannels{}
	e.gw.WithInvoiceChannels(ch)
	return ch
}

func (e *testEnv) lastEvent(t *testing.T) contracts.InvoiceEvent {
	t.Helper()
	e.notifier.mu.Lock()
	defer e.notifier.mu.Unlock()
	require.NotEmpty(t, e.notifier.events)
	return e.notifier.events[len(e.notifier.events)-1]
}

func TestCreateOpensInvoiceChannel(t *testing.T) {
	env := newEnv(t, nil)
	ch := env.withChannels()

	reply := env.gw.Handle(context.Background(), Request{Action: ActionCreate, Caller: admin, PayerID: payer.UserID, Amount: "12.50"})
	require.Len(t, ch.opened, 1)
	channelID := ch.opened[0]
	assert.True(t, reply.Ephemeral)
	assert.Contains(t, reply.Content, "<#"+channelID+">")
	assert.Nil(t, reply.Embed, "the card lives in the invoice channel")

	card := ch.cards[channelID]
	require.NotNil(t, card.Embed)
	assert.Contains(t, card.Content, "<@payer-1>")

	invs, err := env.ledger.ListByPayer(context.Background(), payer.UserID, 5)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, channelID, invs[0].InvoiceChannelID)
	assert.Equal(t, "card-"+channelID, invs[0].CardMessageID)

	ev := env.lastEvent(t)
	assert.Equal(t, contracts.EventInvoiceCreated, ev.Event)
	assert.Equal(t, channelID, ev.InvoiceChannelID)
	assert.Equal(t, "card-"+channelID, ev.CardMessageID)
}

func TestCreateFallsBackWhenChannelCannotOpen(t *testing.T) {
	env := newEnv(t, nil)
	ch := env.withChannels()
	ch.openErr = errors.New("missing access")

	reply := env.gw.Handle(context.Background(), Request{Action: ActionCreate, Caller: admin, PayerID: payer.UserID, Amount: "12.50"})
	require.NotNil(t, reply.Embed)
	assert.False(t, reply.Ephemeral)
	assert.Contains(t, reply.Content, "<@payer-1>")
	assert.Empty(t, env.lastEvent(t).InvoiceChannelID)
}

func TestResendCommand(t *testing.T) {
	env := newEnv(t, nil)
	inv := env.createInvoice(t)

	reply := env.gw.Handle(context.Background(), Request{Action: ActionResend, Caller: payer, InvoiceRef: inv.ShortID()})
	assert.Contains(t, reply.Content, "sent to <@payer-1> again")
	ev := env.lastEvent(t)
	assert.Equal(t, contracts.EventInvoiceReminder, ev.Event)
	assert.Equal(t, "DRAFT", ev.Status)

	env.gw.Handle(context.Background(), Request{Action: ActionPay, Caller: payer, InvoiceRef: inv.ShortID()})
	_, err := env.ledger.ApplyPayment(context.Background(), inv.InvoiceID, invoice.OutcomeSucceeded, "pi_1")
	require.NoError(t, err)

	before := len(env.notifier.events)
	reply = env.gw.Handle(context.Background(), Request{Action: ActionResend, Caller: payer, InvoiceRef: inv.ShortID()})
	assert.Contains(t, reply.Content, "nothing to send")
	assert.Len(t, env.notifier.events, before)
}

func TestRecreateCommand(t *testing.T) {
	env := newEnv(t, nil)
	inv := env.createInvoice(t)

	// Only expired or cancelled invoices can be recreated.
	reply := env.gw.Handle(context.Background(), Request{Action: ActionRecreate, Caller: admin, InvoiceRef: inv.ShortID()})
	assert.Contains(t, reply.Content, "only expired or cancelled")

	_, err := env.ledger.Cancel(context.Background(), inv.InvoiceID)
	require.NoError(t, err)

	// The payer may not issue invoices.
	reply = env.gw.Handle(context.Background(), Request{Action: ActionRecreate, Caller: payer, InvoiceRef: inv.ShortID()})
	assert.True(t, isDenied(reply))

	reply = env.gw.Handle(context.Background(), Request{Action: ActionRecreate, Caller: admin, InvoiceRef: inv.ShortID()})
	assert.Contains(t, reply.Content, "Replaces #"+inv.ShortID())

	invs, err := env.ledger.ListByPayer(context.Background(), payer.UserID, 5)
	require.NoError(t, err)
	require.Len(t, invs, 2)
	var fresh *invoice.Invoice
	for _, i := range invs {
		if i.InvoiceID != inv.InvoiceID {
			fresh = i
		}
	}
	require.NotNil(t, fresh)
	assert.Equal(t, invoice.InvoiceDraft, fresh.Status)
	assert.Equal(t, inv.AmountMinor, fresh.AmountMinor)
	assert.Equal(t, inv.Currency, fresh.Currency)
	assert.Equal(t, inv.Description, fresh.Description)
	assert.Equal(t, contracts.EventInvoiceCreated, env.lastEvent(t).Event)
}

func TestCloseChannelCommand(t *testing.T) {
	env := newEnv(t, nil)
	ch := env.withChannels()
	env.gw.Handle(context.Background(), Request{Action: ActionCreate, Caller: admin, PayerID: payer.UserID, Amount: "12.50"})
	invs, err := env.ledger.ListByPayer(context.Background(), payer.UserID, 1)
	require.NoError(t, err)
	inv := invs[0]

	// Open invoices keep their channel.
	reply := env.gw.Handle(context.Background(), Request{Action: ActionClose, Caller: admin, InvoiceRef: inv.ShortID()})
	assert.Contains(t, reply.Content, "cancel it before")
	assert.Empty(t, ch.closed)

	reply = env.gw.Handle(context.Background(), Request{Action: ActionClose, Caller: payer, InvoiceRef: inv.ShortID()})
	assert.True(t, isDenied(reply))

	env.gw.Handle(context.Background(), Request{Action: ActionCancel, Caller: admin, InvoiceRef: inv.ShortID()})
	reply = env.gw.Handle(context.Background(), Request{Action: ActionClose, Caller: admin, InvoiceRef: inv.ShortID()})
	assert.Contains(t, reply.Content, "closed")
	assert.Equal(t, []string{inv.InvoiceChannelID}, ch.closed)

	got, err := env.ledger.Get(context.Background(), inv.InvoiceID)
	require.NoError(t, err)
	assert.Empty(t, got.InvoiceChannelID)
	assert.Empty(t, got.CardMessageID)

	reply = env.gw.Handle(context.Background(), Request{Action: ActionClose, Caller: admin, InvoiceRef: inv.ShortID()})
	assert.Contains(t, reply.Content, "no channel")
}

func TestCardButtonsFollowStatus(t *testing.T) {
	id := uuid.New()
	ids := func(bs []Button) []string {
		var out []string
		for _, b := range bs {
			if b.CustomID != "" {
				out = append(out, b.CustomID)
			}
		}
		return out
	}
	stripe := []invoice.Provider{invoice.ProviderStripe}

	draft := &invoice.Invoice{InvoiceID: id, Status: invoice.InvoiceDraft}
	assert.Equal(t, []string{PayButtonID(invoice.ProviderStripe, id), ResendButtonID(id), CancelButtonID(id)}, ids(invoiceButtons(draft, stripe)))

	expired := &invoice.Invoice{InvoiceID: id, Status: invoice.InvoiceExpired}
	assert.Equal(t, []string{RecreateButtonID(id)}, ids(invoiceButtons(expired, stripe)))

	paid := &invoice.Invoice{InvoiceID: id, Status: invoice.InvoicePaid, InvoiceChannelID: "chan-1"}
	assert.Equal(t, []string{CloseButtonID(id)}, ids(invoiceButtons(paid, stripe)))
}

func TestEventReplyReminder(t *testing.T) {
	ev := contracts.InvoiceEvent{Event: contracts.EventInvoiceReminder, ShortID: "abcd1234", Status: "PENDING", Amount: "1.00 USD", PaymentURL: "https://pay.example.com/x"}
	r := EventReply(ev)
	require.NotNil(t, r.Embed)
	assert.Contains(t, r.Embed.Title, "Reminder")
	assert.Contains(t, r.Embed.Description, "https://pay.example.com/x")
}
