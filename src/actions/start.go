// Package actions assembles the long-running modules of the bot process.
package actions

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/stake-plus/bottlebot/src/bot"
	"github.com/stake-plus/bottlebot/src/bottles"
	"github.com/stake-plus/bottlebot/src/config"
	"github.com/stake-plus/bottlebot/src/events"
	"github.com/stake-plus/bottlebot/src/ledger"
	"github.com/stake-plus/bottlebot/src/registry"
	"github.com/stake-plus/bottlebot/src/webserver"
)

// Services are the shared stores every module works against.
type Services struct {
	Store  *bottles.Store
	Guilds *registry.Guilds
	Users  *registry.Users
	Ledger *ledger.Ledger
}

// NewServices builds the stores over a migrated database.
func NewServices(cfg config.Config, db *gorm.DB, pub events.Publisher) Services {
	store := bottles.NewStore(db)
	guilds := registry.NewGuilds(db, store, pub)
	return Services{
		Store:  store,
		Guilds: guilds,
		Users:  registry.NewUsers(db, store, cfg.AutoAdmin),
		Ledger: ledger.New(db, guilds, cfg.XPPerReaction, pub),
	}
}

// BuildModules creates the gateway, the expiry sweeper and the HTTP API in
// start order. Nothing is connected until the manager starts them.
func BuildModules(cfg config.Config, svc Services, pub events.Publisher) ([]Module, error) {
	strategy, err := bottles.StrategyByName(cfg.PairingPolicy)
	if err != nil {
		return nil, fmt.Errorf("actions: %w", err)
	}

	botMod, err := bot.NewModule(bot.Config{
		Token:         cfg.DiscordToken,
		Prefix:        cfg.Prefix,
		AutoAdmin:     cfg.AutoAdmin,
		DashboardURL:  cfg.PublicURL,
		SlashCommands: cfg.SlashCommands,
	}, bot.Deps{
		Store:    svc.Store,
		Guilds:   svc.Guilds,
		Users:    svc.Users,
		Ledger:   svc.Ledger,
		Strategy: strategy,
		Events:   pub,
	})
	if err != nil {
		return nil, fmt.Errorf("actions: init bot module: %w", err)
	}

	sweeper, err := bottles.NewSweeper(svc.Store, cfg.BottleMaxAge, cfg.ExpiryCron, pub, zap.L().Named("expiry"))
	if err != nil {
		return nil, fmt.Errorf("actions: init sweeper: %w", err)
	}

	api := webserver.New(webserver.Config{
		Addr:        cfg.HTTPAddr,
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: cfg.CORSOrigins,
		RPS:         cfg.APIRPS,
		Burst:       cfg.APIBurst,
	}, webserver.Deps{
		Store:    svc.Store,
		Guilds:   svc.Guilds,
		Users:    svc.Users,
		Operator: botMod.Matcher(),
		Sweeper:  sweeper,
	})

	return []Module{botMod, sweeper, api}, nil
}

// StartAll wires up every module and starts the manager.
func StartAll(ctx context.Context, cfg config.Config, db *gorm.DB, pub events.Publisher) (*Manager, error) {
	mods, err := BuildModules(cfg, NewServices(cfg, db, pub), pub)
	if err != nil {
		return nil, err
	}
	mgr := NewManager(mods...)
	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	return mgr, nil
}
