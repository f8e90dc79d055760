// Package ledger turns reactions on delivered bottles into guild XP. Each
// (message, reactor, emoji) key counts at most once at any time; adding and
// removing the same reaction nets to zero.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stake-plus/bottlebot/src/events"
	"github.com/stake-plus/bottlebot/src/metrics"
	"github.com/stake-plus/bottlebot/src/registry"
	"github.com/stake-plus/bottlebot/src/shared/models"
)

var errUnchanged = errors.New("reaction state unchanged")

// Key identifies one reaction.
type Key struct {
	MessageID string
	ReactorID string
	Emoji     string
}

func (k Key) valid() bool {
	return k.MessageID != "" && k.ReactorID != "" && k.Emoji != ""
}

// Ledger records reaction state and applies the XP delta in the same
// transaction as the state flip.
type Ledger struct {
	db     *gorm.DB
	guilds *registry.Guilds
	delta  int64
	events events.Publisher
	log    *zap.Logger
}

// New builds a ledger awarding delta XP per counted reaction.
func New(db *gorm.DB, guilds *registry.Guilds, delta int64, pub events.Publisher) *Ledger {
	if delta <= 0 {
		delta = 1
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Ledger{db: db, guilds: guilds, delta: delta, events: pub, log: zap.L()}
}

// Apply counts the reaction for guildID unless it is already counted. It
// reports whether the guild's XP changed.
func (l *Ledger) Apply(ctx context.Context, key Key, guildID string) (bool, error) {
	return l.flip(ctx, key, guildID, true)
}

// Revert uncounts a previously applied reaction. Reverting a reaction that was
// never applied changes nothing.
func (l *Ledger) Revert(ctx context.Context, key Key, guildID string) (bool, error) {
	return l.flip(ctx, key, guildID, false)
}

func (l *Ledger) flip(ctx context.Context, key Key, guildID string, active bool) (bool, error) {
	if !key.valid() || guildID == "" {
		return false, fmt.Errorf("ledger: incomplete reaction key %+v for guild %q", key, guildID)
	}

	delta := l.delta
	direction := "apply"
	if !active {
		delta = -delta
		direction = "revert"
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if active {
			rec := models.ReactionRecord{
				MessageID: key.MessageID,
				ReactorID: key.ReactorID,
				Emoji:     key.Emoji,
				GuildID:   guildID,
				Active:    false,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
				return fmt.Errorf("create reaction record: %w", err)
			}
		}

		res := tx.Model(&models.ReactionRecord{}).
			Where("message_id = ? AND reactor_id = ? AND emoji = ? AND active = ?",
				key.MessageID, key.ReactorID, key.Emoji, !active).
			Update("active", active)
		if res.Error != nil {
			return fmt.Errorf("flip reaction record: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errUnchanged
		}
		return l.guilds.WithTx(tx).AddXP(ctx, guildID, delta)
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	metrics.Reactions.WithLabelValues(direction).Inc()
	if err := l.events.Publish(ctx, events.TypeXP, map[string]string{
		"guild_id": guildID,
		"delta":    strconv.FormatInt(delta, 10),
	}); err != nil {
		l.log.Warn("ledger: publish event failed", zap.Error(err))
	}
	return true, nil
}
