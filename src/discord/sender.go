package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/stake-plus/bottlebot/src/bottles"
	"github.com/stake-plus/bottlebot/src/shared/models"
)

const bottleHeader = "**A bottle washed up!** React to show the sender some love."

// Session is the subset of *discordgo.Session the sender needs.
type Session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelInviteCreate(channelID string, i discordgo.Invite, options ...discordgo.RequestOption) (*discordgo.Invite, error)
}

var _ bottles.Sender = (*Sender)(nil)

// Sender delivers bottles and status replies over a Discord session.
type Sender struct {
	session Session

	mu         sync.Mutex
	dmChannels map[string]string
}

func NewSender(session Session) *Sender {
	return &Sender{session: session, dmChannels: map[string]string{}}
}

// Send posts the bottle content to the target's channel, or opens a DM for a
// user target. Mentions in the content never ping anyone. The id of the first
// message is returned; reactions on it are what count.
func (s *Sender) Send(ctx context.Context, msg bottles.Outbound) (string, error) {
	channelID, err := s.channelFor(ctx, msg.Target)
	if err != nil {
		return "", err
	}

	body := strings.TrimSpace(msg.Text)
	if msg.AttachmentURL != "" {
		if body != "" {
			body += "\n"
		}
		body += msg.AttachmentURL
	}

	var firstID string
	for i, chunk := range ChunkMessage(bottleHeader + "\n\n" + body) {
		sent, err := s.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Content:         chunk,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		}, discordgo.WithContext(ctx))
		if err != nil {
			if i == 0 {
				return "", fmt.Errorf("discord: send bottle: %w", err)
			}
			// Later chunks are best effort once the first one landed.
			break
		}
		if i == 0 {
			firstID = sent.ID
		}
	}
	return firstID, nil
}

// Reply posts a status text to an origin, threaded on replyTo when given.
func (s *Sender) Reply(ctx context.Context, to models.Origin, replyTo, text string) error {
	channelID, err := s.channelFor(ctx, to)
	if err != nil {
		return err
	}
	for i, chunk := range ChunkMessage(WrapURLsNoEmbed(text)) {
		send := &discordgo.MessageSend{Content: chunk}
		if i == 0 && replyTo != "" {
			send.Reference = &discordgo.MessageReference{MessageID: replyTo, ChannelID: channelID}
		}
		if _, err := s.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord: send reply: %w", err)
		}
	}
	return nil
}

// CreateInvite creates a permanent invite for channelID.
func (s *Sender) CreateInvite(ctx context.Context, channelID string) (string, error) {
	inv, err := s.session.ChannelInviteCreate(channelID, discordgo.Invite{MaxAge: 0, Temporary: true}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: create invite: %w", err)
	}
	return "https://discord.gg/" + inv.Code, nil
}

func (s *Sender) channelFor(ctx context.Context, o models.Origin) (string, error) {
	if !o.IsDirect() {
		if o.ChannelID == "" {
			return "", fmt.Errorf("discord: guild origin %s has no channel", o.GuildID)
		}
		return o.ChannelID, nil
	}

	s.mu.Lock()
	cached, ok := s.dmChannels[o.UserID]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	ch, err := s.session.UserChannelCreate(o.UserID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: open dm with %s: %w", o.UserID, err)
	}
	s.mu.Lock()
	s.dmChannels[o.UserID] = ch.ID
	s.mu.Unlock()
	return ch.ID, nil
}
