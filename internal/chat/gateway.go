package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/payment"
	"github.com/Kyver-Studios/Kyver-Invoices/shared/contracts"
)

// InvoiceService is the slice of the ledger commands use.
type InvoiceService interface {
	Create(ctx context.Context, p invoice.CreateParams) (*invoice.Invoice, error)
	Resolve(ctx context.Context, ref string) (*invoice.Invoice, error)
	Cancel(ctx context.Context, id uuid.UUID) (*invoice.Result, error)
	ListByPayer(ctx context.Context, payerID string, limit int) ([]*invoice.Invoice, error)
	AttachChannel(ctx context.Context, id uuid.UUID, channelID, messageID string) (*invoice.Result, error)
}

// InvoiceChannels opens the private channel an invoice is discussed in,
// posts its card there and removes the channel once it is no longer needed.
type InvoiceChannels interface {
	OpenInvoiceChannel(ctx context.Context, inv *invoice.Invoice) (string, error)
	PostCard(ctx context.Context, channelID string, r Reply) (string, error)
	CloseInvoiceChannel(ctx context.Context, channelID string) error
}

// PaymentStarter opens and abandons provider checkouts.
type PaymentStarter interface {
	Providers() []invoice.Provider
	StartPayment(ctx context.Context, invoiceID uuid.UUID, provider invoice.Provider) (*invoice.Invoice, error)
	CancelCheckout(ctx context.Context, inv *invoice.Invoice)
}

type Notifier interface {
	Notify(ctx context.Context, ev contracts.InvoiceEvent) error
}

// Renderer turns a payment link into PNG bytes.
type Renderer func(uri string) ([]byte, error)

type GatewayConfig struct {
	AdminRoleID     string
	DefaultCurrency string
	CommandTimeout  time.Duration
}

const (
	defaultCommandTimeout = 10 * time.Second
	listLimit             = 10
)

// Gateway turns chat requests into ledger and payment calls and renders the result.
type Gateway struct {
	invoices InvoiceService
	payments PaymentStarter
	render   Renderer
	notifier Notifier
	channels InvoiceChannels
	cfg      GatewayConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewGateway(invoices InvoiceService, payments PaymentStarter, render Renderer, notifier Notifier, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		invoices: invoices,
		payments: payments,
		render:   render,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With("component", "chat_gateway"),
		now:      time.Now,
	}
}

// WithInvoiceChannels gives every new invoice its own private channel.
func (g *Gateway) WithInvoiceChannels(c InvoiceChannels) *Gateway {
	g.channels = c
	return g
}

// Handle runs one request under the command timeout. It always produces a reply.
// A timeout releases resources but never undoes work that already committed.
func (g *Gateway) Handle(ctx context.Context, req Request) Reply {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CommandTimeout)
	defer cancel()

	log := g.logger.With("action", req.Action, "user", req.Caller.UserID)

	var (
		reply Reply
		err   error
	)
	switch req.Action {
	case ActionCreate:
		reply, err = g.create(ctx, req)
	case ActionStatus:
		reply, err = g.status(ctx, req)
	case ActionCancel:
		reply, err = g.cancel(ctx, req)
	case ActionPay:
		reply, err = g.pay(ctx, req)
	case ActionList:
		reply, err = g.list(ctx, req)
	case ActionResend:
		reply, err = g.resend(ctx, req)
	case ActionRecreate:
		reply, err = g.recreate(ctx, req)
	case ActionClose:
		reply, err = g.closeChannel(ctx, req)
	default:
		err = domainErr.Invalid("unknown command %q", req.Action)
	}
	if err != nil {
		if isExpected(err) {
			log.Info("command rejected", "reason", err)
		} else {
			log.Error("command failed", "error", err)
		}
		return MapError(err)
	}
	return reply
}

func isExpected(err error) bool {
	return errors.Is(err, domainErr.ErrValidation) ||
		errors.Is(err, domainErr.ErrUnauthorized) ||
		errors.Is(err, domainErr.ErrUnknownInvoice) ||
		errors.Is(err, domainErr.ErrInvalidTransition) ||
		errors.Is(err, domainErr.ErrProviderDisabled)
}

func (g *Gateway) create(ctx context.Context, req Request) (Reply, error) {
	// 1. Permission first, so outsiders learn nothing from validation messages.
	if err := authorize(ActionCreate, EvaluateRole(req.Caller, g.cfg.AdminRoleID, nil)); err != nil {
		return Reply{}, err
	}

	// 2. Input
	if req.PayerID == "" {
		return Reply{}, domainErr.Invalid("please specify a valid user")
	}
	currency := req.Currency
	if currency == "" {
		currency = g.cfg.DefaultCurrency
	}
	currency, err := invoice.NormalizeCurrency(currency)
	if err != nil {
		return Reply{}, err
	}
	amount, err := invoice.ParseAmount(req.Amount, currency)
	if err != nil {
		return Reply{}, err
	}

	// 3. Create
	inv, err := g.invoices.Create(ctx, invoice.CreateParams{
		PayerID:     req.PayerID,
		CreatedBy:   req.Caller.UserID,
		ChannelID:   req.Caller.ChannelID,
		AmountMinor: amount,
		Currency:    currency,
		Description: req.Description,
	})
	if err != nil {
		return Reply{}, err
	}
	return g.publish(ctx, inv, ""), nil
}

// publish opens the invoice channel if there is one to open, tells the payer
// and renders the answer for whoever created the invoice.
func (g *Gateway) publish(ctx context.Context, inv *invoice.Invoice, lead string) Reply {
	inv = g.openChannel(ctx, inv)
	g.notify(ctx, inv, "", contracts.EventInvoiceCreated)

	if inv.InvoiceChannelID != "" {
		return Reply{
			Ephemeral: true,
			Content:   strings.TrimSpace(fmt.Sprintf("%s Invoice #%s for %s is ready in <#%s>.", lead, inv.ShortID(), mention(inv.PayerID), inv.InvoiceChannelID)),
		}
	}
	// No private channel, so the card goes where the command was issued.
	return Reply{
		Content: strings.TrimSpace(fmt.Sprintf("%s %s, you have a new invoice.", lead, mention(inv.PayerID))),
		Embed:   InvoiceCard(inv),
		Buttons: invoiceButtons(inv, g.payments.Providers()),
	}
}

// openChannel gives inv its private channel and card. Failures leave the
// invoice without one; it is still usable through commands.
func (g *Gateway) openChannel(ctx context.Context, inv *invoice.Invoice) *invoice.Invoice {
	if g.channels == nil {
		return inv
	}
	log := g.logger.With("invoice_id", inv.InvoiceID)

	channelID, err := g.channels.OpenInvoiceChannel(ctx, inv)
	if err != nil {
		log.Warn("could not open invoice channel", "error", err)
		return inv
	}
	card := Reply{
		Content: fmt.Sprintf("%s, you have a new invoice.", mention(inv.PayerID)),
		Embed:   InvoiceCard(inv),
		Buttons: invoiceButtons(inv, g.payments.Providers()),
	}
	messageID, err := g.channels.PostCard(ctx, channelID, card)
	if err != nil {
		log.Warn("could not post invoice card", "channel_id", channelID, "error", err)
	}

	res, err := g.invoices.AttachChannel(ctx, inv.InvoiceID, channelID, messageID)
	if err != nil {
		log.Error("could not record invoice channel, removing it", "channel_id", channelID, "error", err)
		if cerr := g.channels.CloseInvoiceChannel(context.WithoutCancel(ctx), channelID); cerr != nil {
			log.Warn("could not remove invoice channel", "channel_id", channelID, "error", cerr)
		}
		return inv
	}
	return res.Invoice
}

func (g *Gateway) status(ctx context.Context, req Request) (Reply, error) {
	inv, err := g.resolveFor(ctx, req, ActionStatus)
	if err != nil {
		return Reply{}, err
	}
	return g.card(inv, ""), nil
}

func (g *Gateway) cancel(ctx context.Context, req Request) (Reply, error) {
	inv, err := g.resolveFor(ctx, req, ActionCancel)
	if err != nil {
		return Reply{}, err
	}

	res, err := g.invoices.Cancel(ctx, inv.InvoiceID)
	if errors.Is(err, domainErr.ErrInvalidTransition) && res != nil {
		return g.card(res.Invoice, fmt.Sprintf("Invoice #%s is %s and can no longer be cancelled.", inv.ShortID(), res.Invoice.Status)), nil
	}
	if err != nil {
		return Reply{}, err
	}
	if !res.Changed {
		return g.card(res.Invoice, "This invoice was already cancelled."), nil
	}

	// Close the hosted payment page so it stops taking money.
	if res.Previous == invoice.InvoicePending {
		g.payments.CancelCheckout(ctx, inv)
	}
	g.notify(ctx, res.Invoice, res.Previous, contracts.EventInvoiceStatusChanged)
	return g.card(res.Invoice, fmt.Sprintf("Invoice #%s cancelled.", inv.ShortID())), nil
}

func (g *Gateway) pay(ctx context.Context, req Request) (Reply, error) {
	inv, err := g.resolveFor(ctx, req, ActionPay)
	if err != nil {
		return Reply{}, err
	}
	provider, err := g.pickProvider(req.Provider)
	if err != nil {
		return Reply{}, err
	}

	started, err := g.payments.StartPayment(ctx, inv.InvoiceID, provider)
	if errors.Is(err, domainErr.ErrInvalidTransition) && started != nil {
		return g.card(started, fmt.Sprintf("Invoice #%s is %s, there is nothing to pay.", started.ShortID(), started.Status)), nil
	}
	if err != nil {
		return Reply{}, err
	}

	reply := g.card(started, fmt.Sprintf("Pay **%s** with %s: %s", started.DisplayAmount(), provider.DisplayName(), started.PaymentURL))
	png, err := g.render(started.PaymentURL)
	if err != nil {
		// The invoice is fine; only the picture is missing.
		g.logger.Warn("could not render payment code", "invoice_id", started.InvoiceID, "error", err)
		reply.Content += "\nThe QR code could not be generated, please use the link."
		return reply, nil
	}
	name := "invoice-" + started.ShortID() + ".png"
	reply.Image = &Image{Name: name, ContentType: "image/png", Data: png}
	reply.Embed.ImageName = name
	return reply, nil
}

func (g *Gateway) list(ctx context.Context, req Request) (Reply, error) {
	target := req.TargetUserID
	if target == "" {
		target = req.Caller.UserID
	}
	if target != req.Caller.UserID {
		if err := authorize(ActionCreate, EvaluateRole(req.Caller, g.cfg.AdminRoleID, nil)); err != nil {
			return Reply{}, err
		}
	}

	invoices, err := g.invoices.ListByPayer(ctx, target, listLimit)
	if err != nil {
		return Reply{}, err
	}
	if len(invoices) == 0 {
		return Reply{Ephemeral: true, Content: "No invoices found for " + mention(target) + "."}, nil
	}

	lines := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		desc := inv.Description
		if desc == "" {
			desc = "Payment Request"
		}
		lines = append(lines, fmt.Sprintf("%s `#%s` **%s** %s", statusEmoji(inv.Status), inv.ShortID(), inv.DisplayAmount(), desc))
	}
	return Reply{
		Ephemeral: true,
		Embed: &Embed{
			Title:       "📋 Invoices for " + target,
			Description: strings.Join(lines, "\n"),
			Color:       ColorInfo,
			Footer:      footer,
			Timestamp:   g.now(),
		},
	}, nil
}

// resend sends the invoice to the payer's DMs again.
func (g *Gateway) resend(ctx context.Context, req Request) (Reply, error) {
	inv, err := g.resolveFor(ctx, req, ActionResend)
	if err != nil {
		return Reply{}, err
	}
	if inv.Status != invoice.InvoiceDraft && inv.Status != invoice.InvoicePending {
		return g.card(inv, fmt.Sprintf("Invoice #%s is %s, there is nothing to send.", inv.ShortID(), inv.Status)), nil
	}
	if err := g.notify(ctx, inv, "", contracts.EventInvoiceReminder); err != nil {
		return Reply{}, fmt.Errorf("%w: reminder not sent: %v", domainErr.ErrProviderUnavailable, err)
	}
	return g.card(inv, fmt.Sprintf("Invoice #%s sent to %s again.", inv.ShortID(), mention(inv.PayerID))), nil
}

// recreate issues a fresh DRAFT with the terms of an invoice that can no
// longer be paid.
func (g *Gateway) recreate(ctx context.Context, req Request) (Reply, error) {
	old, err := g.resolveFor(ctx, req, ActionRecreate)
	if err != nil {
		return Reply{}, err
	}
	if old.Status != invoice.InvoiceExpired && old.Status != invoice.InvoiceCancelled {
		return g.card(old, fmt.Sprintf("Invoice #%s is %s, only expired or cancelled invoices can be recreated.", old.ShortID(), old.Status)), nil
	}

	channelID := old.ChannelID
	if channelID == "" {
		channelID = req.Caller.ChannelID
	}
	inv, err := g.invoices.Create(ctx, invoice.CreateParams{
		PayerID:     old.PayerID,
		CreatedBy:   req.Caller.UserID,
		ChannelID:   channelID,
		AmountMinor: old.AmountMinor,
		Currency:    old.Currency,
		Description: old.Description,
	})
	if err != nil {
		return Reply{}, err
	}
	g.logger.Info("invoice recreated", "from", old.InvoiceID, "invoice_id", inv.InvoiceID)
	reply := g.publish(ctx, inv, fmt.Sprintf("Replaces #%s.", old.ShortID()))
	reply.Ephemeral = true
	return reply, nil
}

// closeChannel removes the private channel of a settled invoice.
func (g *Gateway) closeChannel(ctx context.Context, req Request) (Reply, error) {
	inv, err := g.resolveFor(ctx, req, ActionClose)
	if err != nil {
		return Reply{}, err
	}
	if inv.InvoiceChannelID == "" || g.channels == nil {
		return Reply{Ephemeral: true, Content: fmt.Sprintf("Invoice #%s has no channel to close.", inv.ShortID())}, nil
	}
	if !inv.Status.IsTerminal() {
		return g.card(inv, fmt.Sprintf("Invoice #%s is still %s, cancel it before closing its channel.", inv.ShortID(), inv.Status)), nil
	}

	if err := g.channels.CloseInvoiceChannel(ctx, inv.InvoiceChannelID); err != nil {
		return Reply{}, fmt.Errorf("%w: close channel: %v", domainErr.ErrProviderUnavailable, err)
	}
	if _, err := g.invoices.AttachChannel(ctx, inv.InvoiceID, "", ""); err != nil {
		return Reply{}, err
	}
	return Reply{Ephemeral: true, Content: fmt.Sprintf("Channel for invoice #%s closed.", inv.ShortID())}, nil
}

// resolveFor loads the invoice and checks the caller may act on it.
// Strangers get the same answer as for an id that does not exist.
func (g *Gateway) resolveFor(ctx context.Context, req Request, action Action) (*invoice.Invoice, error) {
	if strings.TrimSpace(req.InvoiceRef) == "" {
		return nil, domainErr.Invalid("please give an invoice id")
	}
	inv, err := g.invoices.Resolve(ctx, req.InvoiceRef)
	if err != nil {
		return nil, err
	}
	role := EvaluateRole(req.Caller, g.cfg.AdminRoleID, inv)
	if err := authorize(action, role); err != nil {
		if role == RoleNone {
			// Invoices a caller has no part in read the same as missing ones.
			return nil, fmt.Errorf("invoice %s: %w", req.InvoiceRef, domainErr.ErrUnknownInvoice)
		}
		return nil, err
	}
	return inv, nil
}

func (g *Gateway) pickProvider(raw string) (invoice.Provider, error) {
	enabled := g.payments.Providers()
	if raw == "" {
		switch len(enabled) {
		case 0:
			return "", fmt.Errorf("%w: no providers configured", domainErr.ErrProviderDisabled)
		case 1:
			return enabled[0], nil
		}
		return "", domainErr.Invalid("please choose a payment provider")
	}
	p, err := invoice.ParseProvider(raw)
	if err != nil {
		return "", domainErr.Invalid("unknown payment provider %q", raw)
	}
	for _, e := range enabled {
		if e == p {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", domainErr.ErrProviderDisabled, p)
}

func (g *Gateway) card(inv *invoice.Invoice, content string) Reply {
	return Reply{
		Ephemeral: true,
		Content:   content,
		Embed:     InvoiceCard(inv),
		Buttons:   invoiceButtons(inv, g.payments.Providers()),
	}
}

// notify logs and returns delivery failures. Only the reminder acts on them;
// state changes are already committed.
func (g *Gateway) notify(ctx context.Context, inv *invoice.Invoice, previous invoice.InvoiceStatus, eventType string) error {
	if g.notifier == nil {
		return nil
	}
	ev := payment.EventFor(inv, previous, eventType, g.now())
	if err := g.notifier.Notify(ctx, ev); err != nil {
		g.logger.Warn("failed to send invoice notification", "invoice_id", inv.InvoiceID, "event", eventType, "error", err)
		return err
	}
	return nil
}
