package discord

import (
	"bytes"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Kyver-Studios/Kyver-Invoices/internal/chat"
)

// Discord allows five buttons per action row.
const buttonsPerRow = 5

func toEmbed(e *chat.Embed) *discordgo.MessageEmbed {
	if e == nil {
		return nil
	}
	me := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		me.Fields = append(me.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.Footer != "" {
		me.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if !e.Timestamp.IsZero() {
		me.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	if e.ImageName != "" {
		me.Image = &discordgo.MessageEmbedImage{URL: "attachment://" + e.ImageName}
	}
	return me
}

func toComponents(buttons []chat.Button) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for start := 0; start < len(buttons); start += buttonsPerRow {
		end := start + buttonsPerRow
		if end > len(buttons) {
			end = len(buttons)
		}
		row := discordgo.ActionsRow{}
		for _, b := range buttons[start:end] {
			btn := discordgo.Button{Label: b.Label}
			switch b.Style {
			case chat.ButtonLink:
				btn.Style = discordgo.LinkButton
				btn.URL = b.URL
			case chat.ButtonSecondary:
				btn.Style = discordgo.SecondaryButton
				btn.CustomID = b.CustomID
			case chat.ButtonDanger:
				btn.Style = discordgo.DangerButton
				btn.CustomID = b.CustomID
			default:
				btn.Style = discordgo.PrimaryButton
				btn.CustomID = b.CustomID
			}
			row.Components = append(row.Components, btn)
		}
		rows = append(rows, row)
	}
	return rows
}

func toFiles(img *chat.Image) []*discordgo.File {
	if img == nil {
		return nil
	}
	return []*discordgo.File{{
		Name:        img.Name,
		ContentType: img.ContentType,
		Reader:      bytes.NewReader(img.Data),
	}}
}

// toWebhookEdit fills in a deferred interaction response.
func toWebhookEdit(r chat.Reply) *discordgo.WebhookEdit {
	content := r.Content
	embeds := []*discordgo.MessageEmbed{}
	if e := toEmbed(r.Embed); e != nil {
		embeds = append(embeds, e)
	}
	components := toComponents(r.Buttons)
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	return &discordgo.WebhookEdit{
		Content:    &content,
		Embeds:     &embeds,
		Components: &components,
		Files:      toFiles(r.Image),
	}
}

// toMessageSend builds a regular message for DMs and channel posts.
func toMessageSend(r chat.Reply) *discordgo.MessageSend {
	msg := &discordgo.MessageSend{
		Content:    r.Content,
		Components: toComponents(r.Buttons),
		Files:      toFiles(r.Image),
	}
	if e := toEmbed(r.Embed); e != nil {
		msg.Embeds = []*discordgo.MessageEmbed{e}
	}
	return msg
}

// toMessageEdit rewrites a posted message. Attachments are left as they are.
func toMessageEdit(channelID, messageID string, r chat.Reply) *discordgo.MessageEdit {
	content := r.Content
	embeds := []*discordgo.MessageEmbed{}
	if e := toEmbed(r.Embed); e != nil {
		embeds = append(embeds, e)
	}
	components := toComponents(r.Buttons)
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	return &discordgo.MessageEdit{
		ID:         messageID,
		Channel:    channelID,
		Content:    &content,
		Embeds:     &embeds,
		Components: &components,
	}
}
