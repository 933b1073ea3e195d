package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"unicode"

	"github.com/bwmarrin/discordgo"

	"github.com/Kyver-Studios/Kyver-Invoices/internal/chat"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
)

// Session owns the bot's gateway connection. It is created first, handed to
// the notifier for outbound messages, and opened once the gateway exists.
type Session struct {
	dg      *discordgo.Session
	guildID string
	logger  *slog.Logger

	// private invoice channels, off while categoryID is empty
	categoryID  string
	adminRoleID string

	mu     sync.Mutex
	remove func()
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSession(token, guildID string, logger *slog.Logger) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsDirectMessages
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{dg: dg, guildID: guildID, logger: logger.With("component", "discord_session")}, nil
}

// WithInvoiceChannels makes OpenInvoiceChannel create channels under the
// given category, visible to the payer and adminRoleID.
func (s *Session) WithInvoiceChannels(categoryID, adminRoleID string) *Session {
	s.categoryID, s.adminRoleID = categoryID, adminRoleID
	return s
}

// Open connects, installs the interaction handler and registers /invoice.
// Interactions are handled under ctx; Close cancels it and waits for them.
func (s *Session) Open(ctx context.Context, d *Dispatcher, providers []invoice.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remove != nil {
		return fmt.Errorf("discord session already open")
	}

	hctx, cancel := context.WithCancel(ctx)
	remove := s.dg.AddHandler(func(dg *discordgo.Session, i *discordgo.InteractionCreate) {
		s.wg.Add(1)
		defer s.wg.Done()
		d.Dispatch(hctx, dg, i)
	})

	if err := s.dg.Open(); err != nil {
		remove()
		cancel()
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}

	if _, err := s.dg.ApplicationCommandBulkOverwrite(s.dg.State.User.ID, s.guildID, Commands(providers), discordgo.WithContext(ctx)); err != nil {
		remove()
		cancel()
		_ = s.dg.Close()
		return fmt.Errorf("failed to register commands: %w", err)
	}

	s.remove, s.cancel = remove, cancel
	s.logger.Info("discord session open", "user", s.dg.State.User.Username, "guild", s.guildID)
	return nil
}

// Close stops accepting interactions, waits for in-flight ones and disconnects.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remove == nil {
		return nil
	}
	s.remove()
	s.cancel()
	s.wg.Wait()
	s.remove, s.cancel = nil, nil
	s.logger.Info("discord session closed")
	return s.dg.Close()
}

// SendDM delivers a reply to a user's direct messages.
func (s *Session) SendDM(ctx context.Context, userID string, r chat.Reply) error {
	ch, err := s.dg.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to open DM with %s: %w", userID, err)
	}
	return s.SendChannel(ctx, ch.ID, r)
}

// SendChannel posts a reply into a channel.
func (s *Session) SendChannel(ctx context.Context, channelID string, r chat.Reply) error {
	if _, err := s.dg.ChannelMessageSendComplex(channelID, toMessageSend(r), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to post to channel %s: %w", channelID, err)
	}
	return nil
}

// PostCard posts a reply and returns the message id so it can be edited later.
func (s *Session) PostCard(ctx context.Context, channelID string, r chat.Reply) (string, error) {
	m, err := s.dg.ChannelMessageSendComplex(channelID, toMessageSend(r), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to post card to %s: %w", channelID, err)
	}
	return m.ID, nil
}

// EditChannelMessage replaces the content of a message the bot posted.
func (s *Session) EditChannelMessage(ctx context.Context, channelID, messageID string, r chat.Reply) error {
	if _, err := s.dg.ChannelMessageEditComplex(toMessageEdit(channelID, messageID, r), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to edit message %s: %w", messageID, err)
	}
	return nil
}

// OpenInvoiceChannel creates a text channel only the payer, the admin role
// and the bot can see.
func (s *Session) OpenInvoiceChannel(ctx context.Context, inv *invoice.Invoice) (string, error) {
	if s.categoryID == "" {
		return "", fmt.Errorf("invoice channels are not configured")
	}
	username := inv.PayerID
	if u, err := s.dg.User(inv.PayerID, discordgo.WithContext(ctx)); err == nil {
		username = u.Username
	}

	botID := ""
	if s.dg.State != nil && s.dg.State.User != nil {
		botID = s.dg.State.User.ID
	}
	ch, err := s.dg.GuildChannelCreateComplex(s.guildID, discordgo.GuildChannelCreateData{
		Name:                 invoiceChannelName(inv.ShortID(), username),
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                fmt.Sprintf("Invoice #%s for %s", inv.ShortID(), inv.DisplayAmount()),
		ParentID:             s.categoryID,
		PermissionOverwrites: invoiceOverwrites(s.guildID, inv.PayerID, s.adminRoleID, botID),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create invoice channel: %w", err)
	}
	s.logger.Info("invoice channel opened", "invoice_id", inv.InvoiceID, "channel_id", ch.ID)
	return ch.ID, nil
}

// CloseInvoiceChannel deletes an invoice channel. One that is already gone counts as closed.
func (s *Session) CloseInvoiceChannel(ctx context.Context, channelID string) error {
	_, err := s.dg.ChannelDelete(channelID, discordgo.WithContext(ctx))
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete channel %s: %w", channelID, err)
	}
	return nil
}

const (
	memberAccess = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory
	adminAccess  = memberAccess | discordgo.PermissionManageChannels | discordgo.PermissionManageMessages
)

// invoiceOverwrites hides the channel from @everyone, whose role id is the guild id.
func invoiceOverwrites(guildID, payerID, adminRoleID, botID string) []*discordgo.PermissionOverwrite {
	ow := []*discordgo.PermissionOverwrite{
		{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: payerID, Type: discordgo.PermissionOverwriteTypeMember, Allow: memberAccess},
	}
	if adminRoleID != "" {
		ow = append(ow, &discordgo.PermissionOverwrite{ID: adminRoleID, Type: discordgo.PermissionOverwriteTypeRole, Allow: adminAccess})
	}
	if botID != "" {
		ow = append(ow, &discordgo.PermissionOverwrite{ID: botID, Type: discordgo.PermissionOverwriteTypeMember, Allow: adminAccess})
	}
	return ow
}

const maxNameUser = 15

// invoiceChannelName builds "invoice-<short id>-<username>" from the
// characters Discord keeps in text channel names.
func invoiceChannelName(shortID, username string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(username) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == ' ' || r == '.':
			b.WriteRune('-')
		}
	}
	user := strings.Trim(b.String(), "-")
	if len(user) > maxNameUser {
		user = strings.TrimRight(user[:maxNameUser], "-")
	}
	if user == "" {
		return "invoice-" + shortID
	}
	return "invoice-" + shortID + "-" + user
}
