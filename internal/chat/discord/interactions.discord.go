package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/Kyver-Studios/Kyver-Invoices/internal/chat"
)

// CommandHandler is the surface-neutral gateway. *chat.Gateway satisfies it.
type CommandHandler interface {
	Handle(ctx context.Context, req chat.Request) chat.Reply
}

// responder is the part of *discordgo.Session used to answer interactions.
type responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Dispatcher routes Discord interactions to the command gateway.
type Dispatcher struct {
	handler CommandHandler
	logger  *slog.Logger
}

func NewDispatcher(handler CommandHandler, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{handler: handler, logger: logger.With("component", "discord")}
}

// Dispatch answers one interaction. Discord wants an acknowledgement within
// three seconds, so the response is deferred and edited once the work is done.
func (d *Dispatcher) Dispatch(ctx context.Context, r responder, i *discordgo.InteractionCreate) {
	req, err := RequestFromInteraction(i)
	if err != nil {
		d.logger.Debug("ignoring interaction", "reason", err)
		return
	}

	// create posts its card publicly for the payer; everything else is private.
	var flags discordgo.MessageFlags
	if req.Action != chat.ActionCreate {
		flags = discordgo.MessageFlagsEphemeral
	}
	err = r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	}, discordgo.WithContext(ctx))
	if err != nil {
		d.logger.Error("failed to acknowledge interaction", "action", req.Action, "error", err)
		return
	}

	reply := d.handler.Handle(ctx, req)

	if _, err := r.InteractionResponseEdit(i.Interaction, toWebhookEdit(reply), discordgo.WithContext(context.WithoutCancel(ctx))); err != nil {
		d.logger.Error("failed to send reply", "action", req.Action, "error", err)
	}
}

// RequestFromInteraction parses a slash command or button click.
func RequestFromInteraction(i *discordgo.InteractionCreate) (chat.Request, error) {
	req := chat.Request{Caller: callerOf(i)}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		if data.Name != commandName || len(data.Options) == 0 {
			return req, fmt.Errorf("unhandled command %q", data.Name)
		}
		sub := data.Options[0]
		req.Action = chat.Action(sub.Name)
		for _, o := range sub.Options {
			switch o.Name {
			case "user":
				if req.Action == chat.ActionList {
					req.TargetUserID = o.UserValue(nil).ID
				} else {
					req.PayerID = o.UserValue(nil).ID
				}
			case "amount":
				req.Amount = o.StringValue()
			case "currency":
				req.Currency = o.StringValue()
			case "description":
				req.Description = o.StringValue()
			case "id":
				req.InvoiceRef = o.StringValue()
			case "provider":
				req.Provider = o.StringValue()
			}
		}
		return req, nil

	case discordgo.InteractionMessageComponent:
		action, ref, provider, err := chat.ParseButtonID(i.MessageComponentData().CustomID)
		if err != nil {
			return req, err
		}
		req.Action, req.InvoiceRef, req.Provider = action, ref, provider
		return req, nil
	}
	return req, fmt.Errorf("unhandled interaction type %v", i.Type)
}

func callerOf(i *discordgo.InteractionCreate) chat.Caller {
	c := chat.Caller{ChannelID: i.ChannelID, GuildID: i.GuildID}
	switch {
	case i.Member != nil:
		if i.Member.User != nil {
			c.UserID = i.Member.User.ID
		}
		c.RoleIDs = i.Member.Roles
		c.Administrator = i.Member.Permissions&discordgo.PermissionAdministrator != 0
	case i.User != nil:
		// DMs carry no member and therefore no roles.
		c.UserID = i.User.ID
	}
	return c
}
