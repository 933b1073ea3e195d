package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/Kyver-Studios/Kyver-Invoices/internal/chat"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
)

const commandName = "invoice"

func invoiceRefOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "id",
		Description: "Invoice id (the 8 character short id works too)",
		Required:    true,
	}
}

// Commands describes the /invoice command tree for the enabled providers.
func Commands(providers []invoice.Provider) []*discordgo.ApplicationCommand {
	providerChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(providers))
	for _, p := range providers {
		providerChoices = append(providerChoices, &discordgo.ApplicationCommandOptionChoice{Name: p.DisplayName(), Value: string(p)})
	}

	payOptions := []*discordgo.ApplicationCommandOption{invoiceRefOption()}
	if len(providerChoices) > 0 {
		payOptions = append(payOptions, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "provider",
			Description: "How you want to pay",
			Choices:     providerChoices,
		})
	}

	return []*discordgo.ApplicationCommand{{
		Name:        commandName,
		Description: "Invoice management commands",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        string(chat.ActionCreate),
				Description: "Create a new invoice",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "The user to create the invoice for", Required: true},
					{Type: discordgo.ApplicationCommandOptionString, Name: "amount", Description: "Amount, e.g. 12.50", Required: true},
					{Type: discordgo.ApplicationCommandOptionString, Name: "currency", Description: "ISO currency code, e.g. USD"},
					{Type: discordgo.ApplicationCommandOptionString, Name: "description", Description: "What the invoice is for"},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        string(chat.ActionStatus),
				Description: "Show an invoice",
				Options:     []*discordgo.ApplicationCommandOption{invoiceRefOption()},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        string(chat.ActionPay),
				Description: "Get a payment link for an invoice",
				Options:     payOptions,
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        string(chat.ActionCancel),
				Description: "Cancel an invoice",
				Options:     []*discordgo.ApplicationCommandOption{invoiceRefOption()},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        string(chat.ActionList),
				Description: "List invoices",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Whose invoices (admins only)"},
				},
			},
		},
	}}
}
