// Package bot is the Discord gateway module: it turns gateway events into
// bottle submissions, commands, reputation changes and registry updates.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/stake-plus/bottlebot/src/actions/core"
	"github.com/stake-plus/bottlebot/src/bottles"
	"github.com/stake-plus/bottlebot/src/commands"
	"github.com/stake-plus/bottlebot/src/discord"
	"github.com/stake-plus/bottlebot/src/events"
	"github.com/stake-plus/bottlebot/src/ledger"
	"github.com/stake-plus/bottlebot/src/registry"
)

var _ core.Module = (*Module)(nil)

const eventTimeout = 30 * time.Second

// Config is the gateway part of the application configuration.
type Config struct {
	Token        string
	Prefix       string
	AutoAdmin    string
	DashboardURL string
	// SlashCommands registers the command table as global slash commands on ready.
	SlashCommands bool
}

// Deps are the services the module drives.
type Deps struct {
	Store    *bottles.Store
	Guilds   *registry.Guilds
	Users    *registry.Users
	Ledger   *ledger.Ledger
	Strategy bottles.Strategy
	Events   events.Publisher
}

type Module struct {
	cfg     Config
	session *discordgo.Session
	sender  bottles.Sender
	matcher *bottles.Matcher
	store   *bottles.Store
	guilds  *registry.Guilds
	users   *registry.Users
	ledger  *ledger.Ledger
	table   *commands.Table
	isAdmin func(channelID, userID string) bool
	log     *zap.Logger

	runtimeCtx context.Context
	cancel     context.CancelFunc
}

// NewModule creates the Discord session and wires handlers. The connection is
// opened by Start.
func NewModule(cfg Config, deps Deps) (*Module, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsDirectMessageReactions |
		discordgo.IntentsMessageContent

	sender := discord.NewSender(session)
	m := newModule(cfg, deps, sender, sender)
	m.session = session
	m.isAdmin = func(channelID, userID string) bool {
		return discord.IsAdministrator(session, channelID, userID)
	}
	m.initHandlers()
	return m, nil
}

func newModule(cfg Config, deps Deps, sender bottles.Sender, inviter commands.Inviter) *Module {
	if cfg.Prefix == "" {
		cfg.Prefix = "-"
	}
	m := &Module{
		cfg:     cfg,
		sender:  sender,
		store:   deps.Store,
		guilds:  deps.Guilds,
		users:   deps.Users,
		ledger:  deps.Ledger,
		isAdmin: func(string, string) bool { return false },
		log:     zap.L().Named("bot"),
	}
	m.matcher = bottles.NewMatcher(deps.Store, sender, bottles.Options{
		Strategy: deps.Strategy,
		Channels: deps.Guilds,
		Events:   deps.Events,
		Logger:   zap.L().Named("bottles"),
	})
	m.table = commands.NewTable(deps.Users, cfg.AutoAdmin)
	commands.RegisterBuiltins(m.table, commands.Deps{
		Guilds:        deps.Guilds,
		Users:         deps.Users,
		Inviter:       inviter,
		DefaultPrefix: cfg.Prefix,
		DashboardURL:  cfg.DashboardURL,
	})
	return m
}

// Name implements core.Module.
func (m *Module) Name() string { return "bot" }

// Matcher exposes the matcher for operator actions.
func (m *Module) Matcher() *bottles.Matcher { return m.matcher }

func (m *Module) Start(ctx context.Context) error {
	runtimeCtx, cancel := context.WithCancel(ctx)
	m.runtimeCtx = runtimeCtx
	m.cancel = cancel

	if m.session == nil {
		return nil
	}
	if err := m.session.Open(); err != nil {
		cancel()
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	return nil
}

func (m *Module) Stop(ctx context.Context) {
	if m.cancel != nil {
		m.cancel()
	}
	if m.session != nil {
		if err := m.session.Close(); err != nil {
			m.log.Warn("bot: close session", zap.Error(err))
		}
	}
}

// eventContext bounds the work done for one gateway event.
func (m *Module) eventContext() (context.Context, context.CancelFunc) {
	parent := m.runtimeCtx
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, eventTimeout)
}
