package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
	"github.com/Kyver-Studios/Kyver-Invoices/shared/contracts"
)

// Embed colors.
const (
	ColorMain    = 0x5865F2
	ColorSuccess = 0x57F287
	ColorError   = 0xED4245
	ColorWarning = 0xFEE75C
	ColorInfo    = 0x00B0F4
)

const footer = "Kyver Invoices"

// Reply is a surface-neutral chat message. The Discord adapter turns it into
// an interaction response; the notifier into a DM or channel post.
type Reply struct {
	Content   string
	Embed     *Embed
	Image     *Image
	Buttons   []Button
	Ephemeral bool
}

type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []Field
	Footer      string
	Timestamp   time.Time
	// ImageName refers to an attached Image by file name.
	ImageName string
}

type Field struct {
	Name   string
	Value  string
	Inline bool
}

type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota
	ButtonSecondary
	ButtonDanger
	ButtonLink
)

type Button struct {
	Label    string
	Style    ButtonStyle
	CustomID string // for interactive buttons
	URL      string // for link buttons
}

func errorReply(title, description string) Reply {
	return Reply{
		Ephemeral: true,
		Embed: &Embed{
			Title:       "❌ " + title,
			Description: description,
			Color:       ColorError,
			Footer:      footer,
		},
	}
}

func warningReply(title, description string) Reply {
	return Reply{
		Ephemeral: true,
		Embed: &Embed{
			Title:       "⚠️ " + title,
			Description: description,
			Color:       ColorWarning,
			Footer:      footer,
		},
	}
}

func statusEmoji(s invoice.InvoiceStatus) string {
	switch s {
	case invoice.InvoiceDraft:
		return "📝"
	case invoice.InvoicePending:
		return "⏳"
	case invoice.InvoicePaid:
		return "✅"
	case invoice.InvoiceExpired:
		return "⌛"
	case invoice.InvoiceCancelled:
		return "🚫"
	case invoice.InvoiceRefunded:
		return "↩️"
	}
	return "❔"
}

func statusColor(s invoice.InvoiceStatus) int {
	switch s {
	case invoice.InvoicePaid:
		return ColorSuccess
	case invoice.InvoiceExpired, invoice.InvoiceCancelled:
		return ColorError
	case invoice.InvoicePending, invoice.InvoiceRefunded:
		return ColorWarning
	}
	return ColorMain
}

func mention(userID string) string {
	if userID == "" {
		return "unknown"
	}
	return "<@" + userID + ">"
}

// InvoiceCard renders the invoice summary shared by every command.
func InvoiceCard(inv *invoice.Invoice) *Embed {
	description := inv.Description
	if description == "" {
		description = "Payment Request"
	}
	e := &Embed{
		Title:       "📧 Invoice #" + inv.ShortID(),
		Description: "**" + description + "**",
		Color:       statusColor(inv.Status),
		Footer:      footer,
		Timestamp:   inv.UpdatedAt,
		Fields: []Field{
			{Name: "Customer", Value: mention(inv.PayerID), Inline: true},
			{Name: "Amount", Value: inv.DisplayAmount(), Inline: true},
			{Name: "Status", Value: statusEmoji(inv.Status) + " " + string(inv.Status), Inline: true},
			{Name: "Created", Value: inv.CreatedAt.Format("Jan 02, 2006 at 15:04"), Inline: true},
		},
	}
	if inv.Provider != "" {
		e.Fields = append(e.Fields, Field{Name: "Provider", Value: inv.Provider.DisplayName(), Inline: true})
	}
	if inv.PaidAt != nil {
		e.Fields = append(e.Fields, Field{Name: "Paid", Value: inv.PaidAt.Format("Jan 02, 2006 at 15:04"), Inline: true})
	}
	return e
}

// invoiceButtons offers the next sensible actions for the invoice's state.
func invoiceButtons(inv *invoice.Invoice, providers []invoice.Provider) []Button {
	var buttons []Button
	switch inv.Status {
	case invoice.InvoiceDraft:
		for _, p := range providers {
			buttons = append(buttons, Button{
				Label:    "Pay with " + p.DisplayName(),
				Style:    ButtonPrimary,
				CustomID: PayButtonID(p, inv.InvoiceID),
			})
		}
		buttons = append(buttons,
			Button{Label: "Resend DM", Style: ButtonSecondary, CustomID: ResendButtonID(inv.InvoiceID)},
			Button{Label: "Cancel", Style: ButtonDanger, CustomID: CancelButtonID(inv.InvoiceID)},
		)
	case invoice.InvoicePending:
		if inv.PaymentURL != "" {
			buttons = append(buttons, Button{Label: "Open " + inv.Provider.DisplayName(), Style: ButtonLink, URL: inv.PaymentURL})
		}
		buttons = append(buttons,
			Button{Label: "Refresh", Style: ButtonSecondary, CustomID: RefreshButtonID(inv.InvoiceID)},
			Button{Label: "Resend DM", Style: ButtonSecondary, CustomID: ResendButtonID(inv.InvoiceID)},
			Button{Label: "Cancel", Style: ButtonDanger, CustomID: CancelButtonID(inv.InvoiceID)},
		)
	case invoice.InvoiceExpired, invoice.InvoiceCancelled:
		buttons = append(buttons, Button{Label: "Recreate", Style: ButtonPrimary, CustomID: RecreateButtonID(inv.InvoiceID)})
	}
	if inv.Status.IsTerminal() && inv.InvoiceChannelID != "" {
		buttons = append(buttons, Button{Label: "Close channel", Style: ButtonDanger, CustomID: CloseButtonID(inv.InvoiceID)})
	}
	return buttons
}

// Button ids carry the action and invoice so a click survives restarts.
func PayButtonID(p invoice.Provider, id uuid.UUID) string {
	return fmt.Sprintf("pay:%s:%s", p, id)
}

func RefreshButtonID(id uuid.UUID) string {
	return "refresh:" + id.String()
}

func CancelButtonID(id uuid.UUID) string {
	return "cancel:" + id.String()
}

func ResendButtonID(id uuid.UUID) string {
	return "resend:" + id.String()
}

func RecreateButtonID(id uuid.UUID) string {
	return "recreate:" + id.String()
}

func CloseButtonID(id uuid.UUID) string {
	return "close:" + id.String()
}

// ParseButtonID turns a button custom id back into a request.
func ParseButtonID(customID string) (Action, string, string, error) {
	parts := strings.Split(customID, ":")
	switch {
	case len(parts) == 3 && parts[0] == "pay":
		return ActionPay, parts[2], parts[1], nil
	case len(parts) == 2 && parts[0] == "refresh":
		return ActionStatus, parts[1], "", nil
	case len(parts) == 2:
		switch a := Action(parts[0]); a {
		case ActionCancel, ActionResend, ActionRecreate, ActionClose:
			return a, parts[1], "", nil
		}
	}
	return "", "", "", fmt.Errorf("unknown button %q", customID)
}

// EventCard rebuilds an invoice card from an event so a card posted
// earlier can be edited to follow the invoice.
func EventCard(ev contracts.InvoiceEvent, providers []invoice.Provider) Reply {
	status := invoice.InvoiceStatus(ev.Status)
	description := ev.Description
	if description == "" {
		description = "Payment Request"
	}
	e := &Embed{
		Title:       "📧 Invoice #" + ev.ShortID,
		Description: "**" + description + "**",
		Color:       statusColor(status),
		Footer:      footer,
		Timestamp:   ev.OccurredAt,
		Fields: []Field{
			{Name: "Customer", Value: mention(ev.PayerID), Inline: true},
			{Name: "Amount", Value: ev.Amount, Inline: true},
			{Name: "Status", Value: statusEmoji(status) + " " + ev.Status, Inline: true},
		},
	}
	provider := invoice.Provider(ev.Provider)
	if provider != "" {
		e.Fields = append(e.Fields, Field{Name: "Provider", Value: provider.DisplayName(), Inline: true})
	}
	reply := Reply{Content: mention(ev.PayerID) + ", here is your invoice.", Embed: e}
	if id, err := uuid.Parse(ev.InvoiceID); err == nil {
		reply.Buttons = invoiceButtons(&invoice.Invoice{
			InvoiceID:        id,
			Status:           status,
			Provider:         provider,
			PaymentURL:       ev.PaymentURL,
			InvoiceChannelID: ev.InvoiceChannelID,
		}, providers)
	}
	return reply
}

// EventReply renders an invoice event for the payer's DMs or a channel.
func EventReply(ev contracts.InvoiceEvent) Reply {
	status := invoice.InvoiceStatus(ev.Status)
	var title, description string
	switch {
	case ev.Event == contracts.EventInvoiceCreated:
		title = "📧 New invoice #" + ev.ShortID
		description = fmt.Sprintf("%s sent you an invoice for **%s**. Use `/invoice pay id:%s` to pay it.", mention(ev.CreatedBy), ev.Amount, ev.ShortID)
	case ev.Event == contracts.EventInvoiceReminder && status == invoice.InvoicePending && ev.PaymentURL != "":
		title = "🔔 Reminder: invoice #" + ev.ShortID
		description = fmt.Sprintf("**%s** is still waiting for payment. Continue here: %s", ev.Amount, ev.PaymentURL)
	case ev.Event == contracts.EventInvoiceReminder:
		title = "🔔 Reminder: invoice #" + ev.ShortID
		description = fmt.Sprintf("%s is waiting for your payment of **%s**. Use `/invoice pay id:%s` to pay it.", mention(ev.CreatedBy), ev.Amount, ev.ShortID)
	case status == invoice.InvoicePaid:
		title = "✅ Invoice #" + ev.ShortID + " paid"
		description = fmt.Sprintf("Payment of **%s** received. Thank you!", ev.Amount)
	case status == invoice.InvoiceDraft && ev.PreviousStatus == string(invoice.InvoicePending):
		title = "❌ Payment failed for invoice #" + ev.ShortID
		description = "The payment did not go through. You can try again with `/invoice pay`."
	case status == invoice.InvoiceExpired:
		title = "⌛ Invoice #" + ev.ShortID + " expired"
		description = "The payment link expired before the payment completed."
	case status == invoice.InvoiceCancelled:
		title = "🚫 Invoice #" + ev.ShortID + " cancelled"
		description = "This invoice was cancelled and can no longer be paid."
	case status == invoice.InvoiceRefunded:
		title = "↩️ Invoice #" + ev.ShortID + " refunded"
		description = fmt.Sprintf("**%s** was refunded.", ev.Amount)
	default:
		title = statusEmoji(status) + " Invoice #" + ev.ShortID
		description = "Status changed to " + ev.Status + "."
	}

	fields := []Field{
		{Name: "Amount", Value: ev.Amount, Inline: true},
		{Name: "Status", Value: statusEmoji(status) + " " + ev.Status, Inline: true},
	}
	if ev.Description != "" {
		fields = append(fields, Field{Name: "Description", Value: ev.Description})
	}
	return Reply{
		Embed: &Embed{
			Title:       title,
			Description: description,
			Color:       statusColor(status),
			Fields:      fields,
			Footer:      footer,
			Timestamp:   ev.OccurredAt,
		},
	}
}
