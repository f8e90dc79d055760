// Package registry holds per-guild configuration and reputation and the
// per-user admin flag. Records are created lazily on first reference.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stake-plus/bottlebot/src/bottles"
	"github.com/stake-plus/bottlebot/src/events"
	"github.com/stake-plus/bottlebot/src/shared/models"
)

var (
	ErrNotFound      = errors.New("registry: record not found")
	ErrPermission    = errors.New("registry: permission denied")
	ErrInvalidPrefix = errors.New("registry: prefix must be a single character")
)

// GuildUpdate names the fields to change. Nil fields are left alone; a pointer
// to "" clears the field.
type GuildUpdate struct {
	BottleChannelID *string
	Prefix          *string
	Invite          *string
}

func (u GuildUpdate) columns() (map[string]interface{}, error) {
	cols := map[string]interface{}{}
	set := func(name string, v *string) {
		if v == nil {
			return
		}
		if s := strings.TrimSpace(*v); s != "" {
			cols[name] = s
		} else {
			cols[name] = nil
		}
	}
	if u.Prefix != nil {
		if p := strings.TrimSpace(*u.Prefix); p != "" && utf8.RuneCountInString(p) != 1 {
			return nil, ErrInvalidPrefix
		}
	}
	set("bottle_channel_id", u.BottleChannelID)
	set("prefix", u.Prefix)
	set("invite", u.Invite)
	return cols, nil
}

// Guilds is the guild registry.
type Guilds struct {
	db     *gorm.DB
	store  *bottles.Store
	events events.Publisher
	log    *zap.Logger
}

// NewGuilds builds a registry. store receives the cascade on removal; pub may be nil.
func NewGuilds(db *gorm.DB, store *bottles.Store, pub events.Publisher) *Guilds {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Guilds{db: db, store: store, events: pub, log: zap.L()}
}

// WithTx returns a view of the registry bound to tx.
func (g *Guilds) WithTx(tx *gorm.DB) *Guilds {
	cp := *g
	cp.db = tx
	return &cp
}

// GetOrCreate returns the guild, creating an unconfigured record when missing.
// The bool reports whether it was created by this call.
func (g *Guilds) GetOrCreate(ctx context.Context, id string) (*models.Guild, bool, error) {
	if id == "" {
		return nil, false, fmt.Errorf("guild id is empty")
	}
	res := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Guild{ID: id})
	if res.Error != nil {
		return nil, false, fmt.Errorf("create guild %s: %w", id, res.Error)
	}
	guild, err := g.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return guild, res.RowsAffected == 1, nil
}

// Get loads a guild or returns ErrNotFound.
func (g *Guilds) Get(ctx context.Context, id string) (*models.Guild, error) {
	var guild models.Guild
	if err := g.db.WithContext(ctx).First(&guild, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load guild %s: %w", id, err)
	}
	return &guild, nil
}

// Update writes only the fields set in u and returns the stored guild.
func (g *Guilds) Update(ctx context.Context, id string, u GuildUpdate) (*models.Guild, error) {
	cols, err := u.columns()
	if err != nil {
		return nil, err
	}
	if _, _, err := g.GetOrCreate(ctx, id); err != nil {
		return nil, err
	}
	if len(cols) > 0 {
		if err := g.db.WithContext(ctx).Model(&models.Guild{}).Where("id = ?", id).Updates(cols).Error; err != nil {
			return nil, fmt.Errorf("update guild %s: %w", id, err)
		}
	}
	return g.Get(ctx, id)
}

// AddXP applies delta atomically on the row. The total is clamped at zero.
func (g *Guilds) AddXP(ctx context.Context, id string, delta int64) error {
	if delta == 0 {
		return nil
	}
	db := g.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Guild{ID: id}).Error; err != nil {
		return fmt.Errorf("create guild %s: %w", id, err)
	}
	err := db.Model(&models.Guild{}).Where("id = ?", id).
		Update("xp", gorm.Expr("CASE WHEN xp + ? < 0 THEN 0 ELSE xp + ? END", delta, delta)).Error
	if err != nil {
		return fmt.Errorf("add xp to guild %s: %w", id, err)
	}
	return nil
}

// BottleChannel returns the guild's bottle channel, or "" when the guild is
// unknown or unconfigured.
func (g *Guilds) BottleChannel(ctx context.Context, guildID string) (string, error) {
	guild, err := g.Get(ctx, guildID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if guild.BottleChannelID == nil {
		return "", nil
	}
	return *guild.BottleChannelID, nil
}

// Prefix returns the guild's command prefix or fallback.
func (g *Guilds) Prefix(ctx context.Context, guildID, fallback string) string {
	guild, err := g.Get(ctx, guildID)
	if err != nil || guild.Prefix == nil || *guild.Prefix == "" {
		return fallback
	}
	return *guild.Prefix
}

// Remove deletes the guild, expires its Pending bottles and drops its reaction
// records in one transaction. It returns the number of bottles expired.
func (g *Guilds) Remove(ctx context.Context, id string) (int64, error) {
	var expired int64
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Guild{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("delete guild: %w", err)
		}
		n, err := g.store.ExpireOrigin(ctx, tx, models.GuildOrigin(id, "").Key())
		if err != nil {
			return err
		}
		expired = n
		if err := tx.Delete(&models.ReactionRecord{}, "guild_id = ?", id).Error; err != nil {
			return fmt.Errorf("delete reaction records: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("remove guild %s: %w", id, err)
	}

	g.log.Info("registry: guild removed", zap.String("guild_id", id), zap.Int64("expired_bottles", expired))
	if err := g.events.Publish(ctx, events.TypeGuildRemoved, map[string]string{
		"guild_id": id,
		"expired":  fmt.Sprint(expired),
	}); err != nil {
		g.log.Warn("registry: publish event failed", zap.Error(err))
	}
	return expired, nil
}

// Leaderboard lists public guilds by XP, highest first.
func (g *Guilds) Leaderboard(ctx context.Context, limit int) ([]models.Guild, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	var out []models.Guild
	err := g.db.WithContext(ctx).
		Where("invite IS NOT NULL AND invite <> ''").
		Order("xp DESC, id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return out, nil
}
