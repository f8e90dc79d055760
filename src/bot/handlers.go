package bot

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/stake-plus/bottlebot/src/bottles"
	"github.com/stake-plus/bottlebot/src/commands"
	"github.com/stake-plus/bottlebot/src/discord"
	"github.com/stake-plus/bottlebot/src/ledger"
	"github.com/stake-plus/bottlebot/src/shared/models"
)

const (
	greetingText   = "Hey! If you want to receive and send bottles, please set the channel you want to receive them in with `-configure #channel`. Thanks!"
	emptyBottle    = "Your bottle is empty! Write something or attach a picture."
	internalErrMsg = "Something went wrong with your bottle, please try again later."
)

// message is the part of a gateway message the handlers use.
type message struct {
	ID              string
	GuildID         string
	ChannelID       string
	AuthorID        string
	AuthorBot       bool
	Content         string
	AttachmentURL   string
	ChannelMentions []string
	UserMentions    []string
}

func (m *Module) initHandlers() {
	m.session.AddHandler(m.onReady)
	m.session.AddHandler(m.onMessageCreate)
	m.session.AddHandler(m.onReactionAdd)
	m.session.AddHandler(m.onReactionRemove)
	m.session.AddHandler(m.onGuildCreate)
	m.session.AddHandler(m.onGuildDelete)
	m.session.AddHandler(m.onInteractionCreate)
}

func (m *Module) onReady(s *discordgo.Session, r *discordgo.Ready) {
	m.log.Info("bot: logged in", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))

	if err := s.UpdateListeningStatus("you, try " + m.cfg.Prefix + "help"); err != nil {
		m.log.Warn("bot: set presence", zap.Error(err))
	}

	ctx, cancel := m.eventContext()
	defer cancel()
	m.promoteBootstrap(ctx)

	if m.cfg.SlashCommands {
		if err := discord.RegisterSlashCommands(s, r.User.ID, ""); err != nil {
			m.log.Warn("bot: register slash commands", zap.Error(err))
		}
	}
}

func (m *Module) promoteBootstrap(ctx context.Context) {
	if m.cfg.AutoAdmin == "" {
		return
	}
	if err := m.users.SetAdmin(ctx, m.cfg.AutoAdmin, true); err != nil {
		m.log.Error("bot: promote bootstrap admin", zap.String("user_id", m.cfg.AutoAdmin), zap.Error(err))
	}
}

func (m *Module) onMessageCreate(s *discordgo.Session, e *discordgo.MessageCreate) {
	if e.Author == nil || (s.State != nil && s.State.User != nil && e.Author.ID == s.State.User.ID) {
		return
	}
	msg := message{
		ID:        e.ID,
		GuildID:   e.GuildID,
		ChannelID: e.ChannelID,
		AuthorID:  e.Author.ID,
		AuthorBot: e.Author.Bot,
		Content:   e.Content,
	}
	if len(e.Attachments) > 0 && e.Attachments[0] != nil {
		msg.AttachmentURL = e.Attachments[0].URL
	}
	for _, u := range e.Mentions {
		msg.UserMentions = append(msg.UserMentions, u.ID)
	}
	for _, c := range e.MentionChannels {
		msg.ChannelMentions = append(msg.ChannelMentions, c.ID)
	}

	ctx, cancel := m.eventContext()
	defer cancel()
	m.handleMessage(ctx, msg)
}

// handleMessage routes a message to the command table or the matcher.
func (m *Module) handleMessage(ctx context.Context, msg message) {
	if msg.AuthorBot {
		return
	}
	origin := models.DirectOrigin(msg.AuthorID)
	if msg.GuildID != "" {
		origin = models.GuildOrigin(msg.GuildID, msg.ChannelID)
	}

	prefix := m.cfg.Prefix
	if msg.GuildID != "" {
		prefix = m.guilds.Prefix(ctx, msg.GuildID, m.cfg.Prefix)
	}
	if name, args, ok := commands.Parse(msg.Content, prefix); ok {
		if _, known := m.table.Lookup(name); known {
			inv := commands.Invocation{
				GuildID:         msg.GuildID,
				ChannelID:       msg.ChannelID,
				AuthorID:        msg.AuthorID,
				Args:            args,
				ChannelMentions: msg.ChannelMentions,
				UserMentions:    msg.UserMentions,
			}
			if msg.GuildID != "" {
				inv.IsGuildAdmin = m.isAdmin(msg.ChannelID, msg.AuthorID)
			}
			m.reply(ctx, origin, msg.ID, m.runCommand(ctx, name, inv))
			return
		}
	}

	out, err := m.matcher.Accept(ctx, bottles.Inbound{
		AuthorID:      msg.AuthorID,
		GuildID:       msg.GuildID,
		ChannelID:     msg.ChannelID,
		MessageID:     msg.ID,
		Content:       msg.Content,
		AttachmentURL: msg.AttachmentURL,
	})
	switch {
	case errors.Is(err, bottles.ErrNotBottleChannel):
		return
	case errors.Is(err, bottles.ErrEmptyContent):
		m.reply(ctx, origin, msg.ID, emptyBottle)
		return
	case err != nil:
		m.log.Error("bot: submit bottle failed", zap.String("message_id", msg.ID), zap.Error(err))
		m.reply(ctx, origin, msg.ID, internalErrMsg)
		return
	}
	m.reply(ctx, origin, msg.ID, out.ReplyText())
}

func (m *Module) runCommand(ctx context.Context, name string, inv commands.Invocation) string {
	text, err := m.table.Dispatch(ctx, name, inv)
	if err == nil {
		return text
	}
	if userText := commands.ErrorText(err); userText != "" {
		return userText
	}
	m.log.Error("bot: command failed", zap.String("command", name), zap.String("guild_id", inv.GuildID), zap.Error(err))
	return "Something went wrong running that command."
}

func (m *Module) reply(ctx context.Context, to models.Origin, replyTo, text string) {
	if text == "" {
		return
	}
	if err := m.sender.Reply(ctx, to, replyTo, text); err != nil {
		m.log.Warn("bot: reply failed", zap.String("origin", to.Key()), zap.Error(err))
	}
}

func (m *Module) onReactionAdd(s *discordgo.Session, e *discordgo.MessageReactionAdd) {
	if e.MessageReaction == nil || m.isSelf(s, e.UserID) {
		return
	}
	ctx, cancel := m.eventContext()
	defer cancel()
	m.handleReaction(ctx, e.MessageID, e.UserID, e.Emoji.APIName(), true)
}

func (m *Module) onReactionRemove(s *discordgo.Session, e *discordgo.MessageReactionRemove) {
	if e.MessageReaction == nil || m.isSelf(s, e.UserID) {
		return
	}
	ctx, cancel := m.eventContext()
	defer cancel()
	m.handleReaction(ctx, e.MessageID, e.UserID, e.Emoji.APIName(), false)
}

func (m *Module) isSelf(s *discordgo.Session, userID string) bool {
	return s.State != nil && s.State.User != nil && s.State.User.ID == userID
}

// handleReaction credits the guild whose bottle the reacted message carries.
// Messages that are not delivered bottles, and bottles sent from DMs, are
// ignored.
func (m *Module) handleReaction(ctx context.Context, messageID, reactorID, emoji string, added bool) {
	if emoji == "" {
		return
	}
	b, err := m.store.ByDeliveredMessage(ctx, messageID)
	if errors.Is(err, bottles.ErrNotFound) {
		return
	}
	if err != nil {
		m.log.Error("bot: resolve reacted bottle", zap.String("message_id", messageID), zap.Error(err))
		return
	}
	if b.GuildID == nil || *b.GuildID == "" {
		return
	}

	key := ledger.Key{MessageID: messageID, ReactorID: reactorID, Emoji: emoji}
	if added {
		_, err = m.ledger.Apply(ctx, key, *b.GuildID)
	} else {
		_, err = m.ledger.Revert(ctx, key, *b.GuildID)
	}
	if err != nil {
		m.log.Error("bot: reaction ledger update failed",
			zap.String("message_id", messageID), zap.Bool("added", added), zap.Error(err))
	}
}

func (m *Module) onGuildCreate(s *discordgo.Session, e *discordgo.GuildCreate) {
	if e.Guild == nil || e.Unavailable {
		return
	}
	ctx, cancel := m.eventContext()
	defer cancel()

	greetChannel := e.SystemChannelID
	if greetChannel == "" {
		for _, ch := range e.Channels {
			if ch.Type == discordgo.ChannelTypeGuildText && canSend(s, ch.ID) {
				greetChannel = ch.ID
				break
			}
		}
	}
	m.handleGuildCreate(ctx, e.ID, greetChannel)
}

func canSend(s *discordgo.Session, channelID string) bool {
	if s.State == nil || s.State.User == nil {
		return false
	}
	perms, err := s.State.UserChannelPermissions(s.State.User.ID, channelID)
	return err == nil && perms&discordgo.PermissionSendMessages != 0
}

// handleGuildCreate registers the guild and greets it on first join.
func (m *Module) handleGuildCreate(ctx context.Context, guildID, greetChannel string) {
	_, created, err := m.guilds.GetOrCreate(ctx, guildID)
	if err != nil {
		m.log.Error("bot: register guild", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	if !created || greetChannel == "" {
		return
	}
	m.log.Info("bot: joined guild", zap.String("guild_id", guildID))
	m.reply(ctx, models.GuildOrigin(guildID, greetChannel), "", greetingText)
}

func (m *Module) onGuildDelete(_ *discordgo.Session, e *discordgo.GuildDelete) {
	if e.Guild == nil || e.Unavailable {
		return
	}
	ctx, cancel := m.eventContext()
	defer cancel()
	m.handleGuildDelete(ctx, e.ID)
}

func (m *Module) handleGuildDelete(ctx context.Context, guildID string) {
	if _, err := m.guilds.Remove(ctx, guildID); err != nil {
		m.log.Error("bot: remove guild", zap.String("guild_id", guildID), zap.Error(err))
	}
}

func (m *Module) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	opts := discord.ParseSlashOptions(data.Options)

	inv := commands.Invocation{
		GuildID:         i.GuildID,
		ChannelID:       i.ChannelID,
		Args:            opts.Args,
		ChannelMentions: opts.Channels,
		UserMentions:    opts.Users,
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		inv.AuthorID = i.Member.User.ID
		inv.IsGuildAdmin = i.Member.Permissions&discordgo.PermissionAdministrator != 0
	case i.User != nil:
		inv.AuthorID = i.User.ID
	}

	ctx, cancel := m.eventContext()
	defer cancel()
	text := m.runCommand(ctx, data.Name, inv)

	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: discord.WrapURLsNoEmbed(text),
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
	if err := s.InteractionRespond(i.Interaction, resp); err != nil {
		m.log.Warn("bot: interaction respond", zap.String("command", data.Name), zap.Error(err))
	}
}
