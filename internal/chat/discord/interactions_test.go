package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kyver-Studios/Kyver-Invoices/internal/chat"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
)

func slashCommand(sub string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: "chan-1",
		GuildID:   "guild-1",
		Member: &discordgo.Member{
			User:        &discordgo.User{ID: "admin-1"},
			Roles:       []string{"role-admin"},
			Permissions: discordgo.PermissionAdministrator,
		},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: commandName,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{
				Name:    sub,
				Type:    discordgo.ApplicationCommandOptionSubCommand,
				Options: opts,
			}},
		},
	}}
}

func strOpt(name, v string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: v}
}

func userOpt(name, id string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionUser, Value: id}
}

func TestRequestFromSlashCommand(t *testing.T) {
	req, err := RequestFromInteraction(slashCommand("create",
		userOpt("user", "payer-1"),
		strOpt("amount", "12.50"),
		strOpt("currency", "eur"),
		strOpt("description", "Logo"),
	))
	require.NoError(t, err)
	assert.Equal(t, chat.ActionCreate, req.Action)
	assert.Equal(t, "payer-1", req.PayerID)
	assert.Equal(t, "12.50", req.Amount)
	assert.Equal(t, "eur", req.Currency)
	assert.Equal(t, "Logo", req.Description)
	assert.Equal(t, "admin-1", req.Caller.UserID)
	assert.True(t, req.Caller.Administrator)
	assert.Equal(t, []string{"role-admin"}, req.Caller.RoleIDs)
	assert.Equal(t, "chan-1", req.Caller.ChannelID)

	req, err = RequestFromInteraction(slashCommand("list", userOpt("user", "payer-9")))
	require.NoError(t, err)
	assert.Equal(t, "payer-9", req.TargetUserID)
	assert.Empty(t, req.PayerID)

	req, err = RequestFromInteraction(slashCommand("pay", strOpt("id", "abcd1234"), strOpt("provider", "paypal")))
	require.NoError(t, err)
	assert.Equal(t, chat.ActionPay, req.Action)
	assert.Equal(t, "abcd1234", req.InvoiceRef)
	assert.Equal(t, "paypal", req.Provider)
}

func TestRequestFromButton(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionMessageComponent,
		User: &discordgo.User{ID: "payer-1"},
		Data: discordgo.MessageComponentInteractionData{CustomID: "pay:stripe:0b7c2d4e-1111-2222-3333-444455556666"},
	}}
	req, err := RequestFromInteraction(i)
	require.NoError(t, err)
	assert.Equal(t, chat.ActionPay, req.Action)
	assert.Equal(t, "stripe", req.Provider)
	assert.Equal(t, "0b7c2d4e-1111-2222-3333-444455556666", req.InvoiceRef)
	assert.Equal(t, "payer-1", req.Caller.UserID)
	assert.False(t, req.Caller.Administrator)
}

func TestRequestFromOtherCommandIsIgnored(t *testing.T) {
	i := slashCommand("create")
	data := i.Data.(discordgo.ApplicationCommandInteractionData)
	data.Name = "ping"
	i.Data = data
	_, err := RequestFromInteraction(i)
	assert.Error(t, err)
}

type fakeResponder struct {
	deferred *discordgo.InteractionResponse
	edit     *discordgo.WebhookEdit
	err      error
}

func (f *fakeResponder) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.deferred = resp
	return f.err
}

func (f *fakeResponder) InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.edit = edit
	return &discordgo.Message{}, nil
}

type stubHandler struct {
	got   chat.Request
	reply chat.Reply
}

func (s *stubHandler) Handle(ctx context.Context, req chat.Request) chat.Reply {
	s.got = req
	return s.reply
}

func TestDispatch(t *testing.T) {
	h := &stubHandler{reply: chat.Reply{
		Content: "hello",
		Embed:   &chat.Embed{Title: "Invoice #abcd1234", Color: chat.ColorMain, ImageName: "invoice-abcd1234.png"},
		Image:   &chat.Image{Name: "invoice-abcd1234.png", ContentType: "image/png", Data: []byte("png")},
		Buttons: []chat.Button{{Label: "Open Stripe", Style: chat.ButtonLink, URL: "https://pay"}, {Label: "Refresh", CustomID: "refresh:x"}},
	}}
	r := &fakeResponder{}
	d := NewDispatcher(h, nil)

	d.Dispatch(context.Background(), r, slashCommand("status", strOpt("id", "abcd1234")))

	require.NotNil(t, r.deferred)
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, r.deferred.Type)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, r.deferred.Data.Flags)
	assert.Equal(t, "abcd1234", h.got.InvoiceRef)

	require.NotNil(t, r.edit)
	assert.Equal(t, "hello", *r.edit.Content)
	require.Len(t, *r.edit.Embeds, 1)
	assert.Equal(t, "attachment://invoice-abcd1234.png", (*r.edit.Embeds)[0].Image.URL)
	require.Len(t, r.edit.Files, 1)
	require.Len(t, *r.edit.Components, 1)
	row := (*r.edit.Components)[0].(discordgo.ActionsRow)
	require.Len(t, row.Components, 2)
	assert.Equal(t, discordgo.LinkButton, row.Components[0].(discordgo.Button).Style)
	assert.Equal(t, "refresh:x", row.Components[1].(discordgo.Button).CustomID)
}

func TestDispatchCreateIsPublic(t *testing.T) {
	r := &fakeResponder{}
	NewDispatcher(&stubHandler{}, nil).Dispatch(context.Background(), r, slashCommand("create", userOpt("user", "p"), strOpt("amount", "1")))
	require.NotNil(t, r.deferred)
	assert.Zero(t, r.deferred.Data.Flags)
}

func TestDispatchSkipsReplyWhenAckFails(t *testing.T) {
	h := &stubHandler{}
	r := &fakeResponder{err: errors.New("unknown interaction")}
	NewDispatcher(h, nil).Dispatch(context.Background(), r, slashCommand("status", strOpt("id", "abcd1234")))
	assert.Nil(t, r.edit)
	assert.Empty(t, h.got.Action)
}

func TestComponentsWrapRows(t *testing.T) {
	buttons := make([]chat.Button, 7)
	for i := range buttons {
		buttons[i] = chat.Button{Label: "b", CustomID: "refresh:x"}
	}
	rows := toComponents(buttons)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0].(discordgo.ActionsRow).Components, 5)
	assert.Len(t, rows[1].(discordgo.ActionsRow).Components, 2)
}

func TestCommandsListProviders(t *testing.T) {
	cmds := Commands([]invoice.Provider{invoice.ProviderStripe, invoice.ProviderPayPal})
	require.Len(t, cmds, 1)
	assert.Equal(t, "invoice", cmds[0].Name)

	var pay *discordgo.ApplicationCommandOption
	for _, o := range cmds[0].Options {
		if o.Name == "pay" {
			pay = o
		}
	}
	require.NotNil(t, pay)
	require.Len(t, pay.Options, 2)
	assert.Len(t, pay.Options[1].Choices, 2)
}

func TestRequestFromChannelButtons(t *testing.T) {
	id := "0b7c2d4e-1111-2222-3333-444455556666"
	for custom, want := range map[string]chat.Action{
		"resend:" + id:   chat.ActionResend,
		"recreate:" + id: chat.ActionRecreate,
		"close:" + id:    chat.ActionClose,
	} {
		i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
			Type:      discordgo.InteractionMessageComponent,
			ChannelID: "invoice-chan",
			Member:    &discordgo.Member{User: &discordgo.User{ID: "admin-1"}, Roles: []string{"role-admin"}},
			Data:      discordgo.MessageComponentInteractionData{CustomID: custom},
		}}
		req, err := RequestFromInteraction(i)
		require.NoError(t, err, custom)
		assert.Equal(t, want, req.Action)
		assert.Equal(t, id, req.InvoiceRef)
		assert.Equal(t, "invoice-chan", req.Caller.ChannelID)
	}
}

func TestInvoiceChannelName(t *testing.T) {
	tests := []struct {
		user string
		want string
	}{
		{"Alice", "invoice-abcd1234-alice"},
		{"john.doe_99", "invoice-abcd1234-john-doe-99"},
		{"Zoë 🚀", "invoice-abcd1234-zo"},
		{"averyveryverylongusername", "invoice-abcd1234-averyveryverylo"},
		{"🚀🚀", "invoice-abcd1234"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, invoiceChannelName("abcd1234", tt.user), tt.user)
	}
}

func TestInvoiceOverwritesHideChannel(t *testing.T) {
	ow := invoiceOverwrites("guild-1", "payer-1", "role-admin", "bot-1")
	require.Len(t, ow, 4)

	everyone := ow[0]
	assert.Equal(t, "guild-1", everyone.ID)
	assert.Equal(t, discordgo.PermissionOverwriteTypeRole, everyone.Type)
	assert.NotZero(t, everyone.Deny&discordgo.PermissionViewChannel)

	payer := ow[1]
	assert.Equal(t, discordgo.PermissionOverwriteTypeMember, payer.Type)
	assert.NotZero(t, payer.Allow&discordgo.PermissionSendMessages)
	assert.Zero(t, payer.Allow&discordgo.PermissionManageChannels)

	assert.NotZero(t, ow[2].Allow&discordgo.PermissionManageMessages)
	assert.Equal(t, "bot-1", ow[3].ID)

	assert.Len(t, invoiceOverwrites("guild-1", "payer-1", "", ""), 2)
}

func TestMessageEditClearsButtons(t *testing.T) {
	edit := toMessageEdit("chan-1", "msg-1", chat.Reply{Embed: &chat.Embed{Title: "Invoice #abcd1234"}})
	assert.Equal(t, "chan-1", edit.Channel)
	assert.Equal(t, "msg-1", edit.ID)
	require.NotNil(t, edit.Components)
	assert.Empty(t, *edit.Components)
	require.Len(t, *edit.Embeds, 1)
}
