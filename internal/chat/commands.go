package chat

// Action names one thing a chat user can ask for.
type Action string

const (
	ActionCreate Action = "create"
	ActionStatus Action = "status"
	ActionCancel Action = "cancel"
	ActionPay    Action = "pay"
	ActionList   Action = "list"

	// Button only
	ActionResend   Action = "resend"
	ActionRecreate Action = "recreate"
	ActionClose    Action = "close"
)

// Caller is who issued a command, as the chat surface reports it.
type Caller struct {
	UserID    string
	RoleIDs   []string
	ChannelID string
	GuildID   string
	// Administrator is set when the member holds the guild-wide admin permission.
	Administrator bool
}

// Request is a parsed command or button click.
type Request struct {
	Action Action
	Caller Caller

	InvoiceRef string // full or short id of the invoice acted on

	// create
	PayerID     string
	Amount      string // as typed, e.g. "12.50"
	Currency    string
	Description string

	// pay
	Provider string

	// list: whose invoices, defaults to the caller
	TargetUserID string
}
