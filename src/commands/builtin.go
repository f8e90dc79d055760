package commands

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/stake-plus/bottlebot/src/registry"
)

// Inviter creates a permanent invite for a channel and returns its URL.
type Inviter interface {
	CreateInvite(ctx context.Context, channelID string) (string, error)
}

// Deps are the collaborators of the built-in commands.
type Deps struct {
	Guilds        *registry.Guilds
	Users         *registry.Users
	Inviter       Inviter
	DefaultPrefix string
	DashboardURL  string
}

var (
	channelMentionRe = regexp.MustCompile(`^<#(\d+)>$`)
	userMentionRe    = regexp.MustCompile(`^<@!?(\d+)>$`)
)

// RegisterBuiltins installs configure, mote, info, publicize and help.
func RegisterBuiltins(t *Table, d Deps) {
	if d.DefaultPrefix == "" {
		d.DefaultPrefix = "-"
	}
	t.Register(Command{
		Name:        "configure",
		Usage:       "configure <#channel> | configure <prefix>",
		Description: "Set the channel bottles are sent from and wash up in, or a one-character command prefix.",
		Permission:  GuildAdmin,
		Scope:       GuildScope,
		Handler:     d.configure,
	})
	t.Register(Command{
		Name:        "mote",
		Usage:       "mote <@user>",
		Description: "Promote or demote a bot admin.",
		Permission:  Bootstrap,
		Scope:       AnyScope,
		Handler:     d.mote,
	})
	t.Register(Command{
		Name:        "info",
		Usage:       "info",
		Description: "Show this server's XP, bottle channel and invite.",
		Permission:  Everyone,
		Scope:       GuildScope,
		Handler:     d.info,
	})
	t.Register(Command{
		Name:        "publicize",
		Usage:       "publicize",
		Description: "Create a permanent invite and list this server on the leaderboard.",
		Permission:  GuildAdmin,
		Scope:       GuildScope,
		Handler:     d.publicize,
	})
	t.Register(Command{
		Name:        "help",
		Usage:       "help",
		Description: "List commands.",
		Permission:  Everyone,
		Scope:       AnyScope,
		Handler: func(ctx context.Context, inv Invocation) (string, error) {
			return d.help(ctx, t, inv)
		},
	})
}

func (d Deps) prefixFor(ctx context.Context, guildID string) string {
	if guildID == "" || d.Guilds == nil {
		return d.DefaultPrefix
	}
	return d.Guilds.Prefix(ctx, guildID, d.DefaultPrefix)
}

func (d Deps) configure(ctx context.Context, inv Invocation) (string, error) {
	var (
		update registry.GuildUpdate
		reply  string
	)
	channelID := firstMention(inv.ChannelMentions, inv.Args, channelMentionRe)
	switch {
	case channelID != "":
		update.BottleChannelID = &channelID
		reply = fmt.Sprintf("Bottles will now be collected from and delivered to <#%s>.", channelID)
	case len(inv.Args) == 1 && utf8.RuneCountInString(inv.Args[0]) == 1:
		prefix := inv.Args[0]
		update.Prefix = &prefix
		reply = fmt.Sprintf("Command prefix set to `%s`.", prefix)
	default:
		return "", ErrUsage
	}

	if _, err := d.Guilds.Update(ctx, inv.GuildID, update); err != nil {
		if errors.Is(err, registry.ErrInvalidPrefix) {
			return "", ErrUsage
		}
		return "", err
	}
	return reply, nil
}

func (d Deps) mote(ctx context.Context, inv Invocation) (string, error) {
	target := firstMention(inv.UserMentions, inv.Args, userMentionRe)
	if target == "" {
		return "", ErrUsage
	}
	admin, err := d.Users.ToggleAdmin(ctx, inv.AuthorID, target)
	if errors.Is(err, registry.ErrPermission) {
		return "", ErrPermission
	}
	if err != nil {
		return "", err
	}
	if admin {
		return fmt.Sprintf("<@%s> is now a bottle admin.", target), nil
	}
	return fmt.Sprintf("<@%s> is no longer a bottle admin.", target), nil
}

func (d Deps) info(ctx context.Context, inv Invocation) (string, error) {
	g, _, err := d.Guilds.GetOrCreate(ctx, inv.GuildID)
	if err != nil {
		return "", err
	}
	prefix := d.prefixFor(ctx, inv.GuildID)

	var b strings.Builder
	b.WriteString("**Bottle info**\n")
	fmt.Fprintf(&b, "XP: %d\n", g.XP)
	if g.BottleChannelID != nil {
		fmt.Fprintf(&b, "Bottle channel: <#%s>\n", *g.BottleChannelID)
	} else {
		fmt.Fprintf(&b, "Bottle channel: not configured, use `%sconfigure #channel`\n", prefix)
	}
	if g.IsPublic() {
		fmt.Fprintf(&b, "Public invite: <%s>\n", *g.Invite)
	} else {
		fmt.Fprintf(&b, "Public invite: none, use `%spublicize`\n", prefix)
	}
	if d.DashboardURL != "" {
		fmt.Fprintf(&b, "Dashboard: <%s/guilds/%s>\n", strings.TrimRight(d.DashboardURL, "/"), g.ID)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (d Deps) publicize(ctx context.Context, inv Invocation) (string, error) {
	if d.Inviter == nil {
		return "", fmt.Errorf("publicize: no inviter configured")
	}
	channelID := inv.ChannelID
	if ch, err := d.Guilds.BottleChannel(ctx, inv.GuildID); err == nil && ch != "" {
		channelID = ch
	}
	url, err := d.Inviter.CreateInvite(ctx, channelID)
	if err != nil {
		return "", fmt.Errorf("create invite: %w", err)
	}
	if _, err := d.Guilds.Update(ctx, inv.GuildID, registry.GuildUpdate{Invite: &url}); err != nil {
		return "", err
	}
	return fmt.Sprintf("This server is now public! Invite: <%s>", url), nil
}

func (d Deps) help(ctx context.Context, t *Table, inv Invocation) (string, error) {
	prefix := d.prefixFor(ctx, inv.GuildID)
	var b strings.Builder
	b.WriteString("**Message in a bottle**\n")
	b.WriteString("Write in your server's bottle channel, or DM me, and your message will be traded with a stranger's.\n\n")
	for _, c := range t.Commands() {
		fmt.Fprintf(&b, "`%s%s` %s\n", prefix, c.Usage, c.Description)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// firstMention prefers gateway-resolved mentions and falls back to raw
// mention syntax in the arguments.
func firstMention(resolved, args []string, re *regexp.Regexp) string {
	if len(resolved) > 0 {
		return resolved[0]
	}
	for _, a := range args {
		if m := re.FindStringSubmatch(a); m != nil {
			return m[1]
		}
	}
	return ""
}
