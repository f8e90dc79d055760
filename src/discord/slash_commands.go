package discord

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	CommandConfigure = "configure"
	CommandMote      = "mote"
	CommandInfo      = "info"
	CommandPublicize = "publicize"
	CommandHelp      = "help"
)

var commandDefinitions = map[string]*discordgo.ApplicationCommand{
	CommandConfigure: {
		Name:        CommandConfigure,
		Description: "Set the bottle channel or the command prefix for this server",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:         discordgo.ApplicationCommandOptionChannel,
				Name:         "channel",
				Description:  "Channel bottles are sent from and delivered to",
				ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "prefix",
				Description: "A single character command prefix",
				MaxLength:   1,
			},
		},
	},
	CommandMote: {
		Name:        CommandMote,
		Description: "Promote or demote a bot admin",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "user",
				Description: "User to promote or demote",
				Required:    true,
			},
		},
	},
	CommandInfo: {
		Name:        CommandInfo,
		Description: "Show this server's XP, bottle channel and invite",
	},
	CommandPublicize: {
		Name:        CommandPublicize,
		Description: "Create a permanent invite and list this server publicly",
	},
	CommandHelp: {
		Name:        CommandHelp,
		Description: "How message in a bottle works",
	},
}

var defaultCommandOrder = []string{
	CommandConfigure,
	CommandMote,
	CommandInfo,
	CommandPublicize,
	CommandHelp,
}

// CommandRegistrar is the part of a session that creates application commands.
type CommandRegistrar interface {
	ApplicationCommandCreate(appID string, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
}

// RegisterSlashCommands registers the requested slash commands. An empty
// guildID registers them globally. When no names are given, all known
// commands are registered.
func RegisterSlashCommands(s CommandRegistrar, appID, guildID string, names ...string) error {
	if appID == "" {
		return fmt.Errorf("discord: application id is required to register slash commands")
	}
	if len(names) == 0 {
		names = defaultCommandOrder
	}

	var failures []string
	for _, name := range names {
		definition, ok := commandDefinitions[name]
		if !ok {
			zap.L().Warn("discord: unknown slash command", zap.String("name", name))
			continue
		}

		if _, err := s.ApplicationCommandCreate(appID, guildID, definition); err != nil {
			if isDuplicateCommandError(err) {
				zap.L().Debug("discord: slash command already registered", zap.String("name", name))
				continue
			}
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("discord: slash command registration errors: %s", strings.Join(failures, "; "))
	}
	return nil
}

// SlashArgs are the options of a slash command call, flattened into the same
// shape a prefix command produces.
type SlashArgs struct {
	Args     []string
	Channels []string
	Users    []string
}

// ParseSlashOptions flattens interaction options.
func ParseSlashOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) SlashArgs {
	var out SlashArgs
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		value, _ := opt.Value.(string)
		if value == "" {
			continue
		}
		switch opt.Type {
		case discordgo.ApplicationCommandOptionChannel:
			out.Channels = append(out.Channels, value)
		case discordgo.ApplicationCommandOptionUser:
			out.Users = append(out.Users, value)
		default:
			out.Args = append(out.Args, value)
		}
	}
	return out
}

func isDuplicateCommandError(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		if strings.Contains(strings.ToLower(restErr.Message.Message), "already exists") {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "50035") && strings.Contains(msg, "already exists")
}
