package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/nuget-tracker/pkg/cmd"
)

var ErrUnsupportedPayload = errors.New("invocation carries no discord payload")

// Messenger is the part of *discordgo.Session the transport needs.
type Messenger interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Transport answers invocations through the Discord API. Interaction
// invocations carry *discordgo.InteractionCreate in Data, text invocations
// carry *discordgo.MessageCreate.
type Transport struct {
	s Messenger
}

func NewTransport(s Messenger) *Transport {
	return &Transport{s: s}
}

func (t *Transport) SendDirect(ctx context.Context, inv *cmd.Invocation, msg cmd.Message) error {
	switch ev := inv.Data.(type) {
	case *discordgo.InteractionCreate:
		return t.s.InteractionRespond(ev.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: responseData(msg),
		}, discordgo.WithContext(ctx))
	case *discordgo.MessageCreate:
		send := messageSend(msg)
		send.Reference = ev.Reference()
		_, err := t.s.ChannelMessageSendComplex(ev.ChannelID, send, discordgo.WithContext(ctx))
		return err
	}
	if inv.ChannelID != "" {
		_, err := t.s.ChannelMessageSendComplex(inv.ChannelID, messageSend(msg), discordgo.WithContext(ctx))
		return err
	}
	return fmt.Errorf("send %s: %w", inv.ID, ErrUnsupportedPayload)
}

func (t *Transport) Defer(ctx context.Context, inv *cmd.Invocation) error {
	ev, ok := inv.Data.(*discordgo.InteractionCreate)
	if !ok {
		return fmt.Errorf("defer %s: %w", inv.ID, ErrUnsupportedPayload)
	}
	return t.s.InteractionRespond(ev.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}, discordgo.WithContext(ctx))
}

func (t *Transport) SendFollowUp(ctx context.Context, inv *cmd.Invocation, msg cmd.Message) error {
	ev, ok := inv.Data.(*discordgo.InteractionCreate)
	if !ok {
		return t.SendDirect(ctx, inv, msg)
	}
	_, err := t.s.FollowupMessageCreate(ev.Interaction, true, webhookParams(msg), discordgo.WithContext(ctx))
	return err
}

// --- Message conversion ---

func responseData(msg cmd.Message) *discordgo.InteractionResponseData {
	data := &discordgo.InteractionResponseData{
		Content: msg.Content,
		Embeds:  embeds(msg.Embed),
		Files:   files(msg.Files),
	}
	if msg.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return data
}

func webhookParams(msg cmd.Message) *discordgo.WebhookParams {
	params := &discordgo.WebhookParams{
		Content: msg.Content,
		Embeds:  embeds(msg.Embed),
		Files:   files(msg.Files),
	}
	if msg.Ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	return params
}

// messageSend drops the ephemeral flag; channel messages are always public.
func messageSend(msg cmd.Message) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content: msg.Content,
		Embeds:  embeds(msg.Embed),
		Files:   files(msg.Files),
	}
}

func embeds(e *cmd.Embed) []*discordgo.MessageEmbed {
	if e == nil {
		return nil
	}
	return []*discordgo.MessageEmbed{toEmbed(e)}
}

func toEmbed(e *cmd.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		URL:         e.URL,
		Color:       e.Color,
	}
	if e.Author != "" {
		out.Author = &discordgo.MessageEmbedAuthor{Name: e.Author}
	}
	if e.ThumbnailURL != "" {
		out.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.ThumbnailURL}
	}
	if e.ImageURL != "" {
		out.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}

func files(in []cmd.File) []*discordgo.File {
	if len(in) == 0 {
		return nil
	}
	out := make([]*discordgo.File, 0, len(in))
	for _, f := range in {
		out = append(out, &discordgo.File{Name: f.Name, ContentType: f.ContentType, Reader: f.Reader})
	}
	return out
}
