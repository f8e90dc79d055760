package models

import (
	"strings"
	"time"
)

// BottleStatus is the lifecycle state of a bottle.
type BottleStatus string

const (
	BottlePending   BottleStatus = "pending"
	BottleMatched   BottleStatus = "matched"
	BottleDelivered BottleStatus = "delivered"
	BottleExpired   BottleStatus = "expired"
)

// Origin is where a bottle came from and where replies go: a guild channel or a
// bare user for a direct exchange. The two forms are mutually exclusive.
type Origin struct {
	GuildID   string
	ChannelID string
	UserID    string
}

// GuildOrigin builds the origin for a message posted in a guild channel.
func GuildOrigin(guildID, channelID string) Origin {
	return Origin{GuildID: guildID, ChannelID: channelID}
}

// DirectOrigin builds the origin for a direct message exchange.
func DirectOrigin(userID string) Origin {
	return Origin{UserID: userID}
}

// IsDirect reports whether the origin is a bare user.
func (o Origin) IsDirect() bool { return o.GuildID == "" }

// Valid reports whether exactly one of the origin forms is populated.
func (o Origin) Valid() bool {
	if o.GuildID != "" {
		return o.ChannelID != "" && o.UserID == ""
	}
	return o.UserID != ""
}

// Key identifies the origin for pairing exclusion. Guild origins are keyed by
// community so two channels of one guild never pair with each other.
func (o Origin) Key() string {
	if o.GuildID != "" {
		return "guild:" + o.GuildID
	}
	return "user:" + o.UserID
}

// Kind is "guild" or "direct", used as a metric label.
func (o Origin) Kind() string {
	if o.IsDirect() {
		return "direct"
	}
	return "guild"
}

// Bottle is an anonymous message queued for exchange.
type Bottle struct {
	ID                 uint64       `gorm:"primaryKey;autoIncrement"`
	OriginKey          string       `gorm:"size:80;not null;index:idx_bottle_queue,priority:2"`
	GuildID            *string      `gorm:"size:32;index"`
	ChannelID          *string      `gorm:"size:32"`
	UserID             *string      `gorm:"size:32;index"`
	AuthorID           string       `gorm:"size:32;not null"`
	SourceMessageID    string       `gorm:"size:32"`
	Content            string       `gorm:"type:text"`
	AttachmentURL      *string      `gorm:"size:512"`
	Status             BottleStatus `gorm:"size:16;not null;default:pending;index:idx_bottle_queue,priority:1"`
	PairedID           *uint64
	DeliveredMessageID *string `gorm:"size:32;uniqueIndex"`
	DeliveredAt        *time.Time
	LastError          *string `gorm:"size:512"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Origin reconstructs the bottle's origin from its columns.
func (b *Bottle) Origin() Origin {
	if b.GuildID != nil && *b.GuildID != "" {
		o := Origin{GuildID: *b.GuildID}
		if b.ChannelID != nil {
			o.ChannelID = *b.ChannelID
		}
		return o
	}
	if b.UserID != nil {
		return Origin{UserID: *b.UserID}
	}
	return Origin{}
}

// Attachment returns the attachment reference or an empty string.
func (b *Bottle) Attachment() string {
	if b.AttachmentURL == nil {
		return ""
	}
	return *b.AttachmentURL
}

// Guild is the per-community configuration and reputation total.
type Guild struct {
	ID              string  `gorm:"primaryKey;size:32"`
	BottleChannelID *string `gorm:"size:32"`
	Prefix          *string `gorm:"size:8"`
	Invite          *string `gorm:"size:128"`
	XP              int64   `gorm:"not null;default:0;index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// GuildState is derived from which channel fields are set.
type GuildState string

const (
	GuildUnconfigured GuildState = "unconfigured"
	GuildConfigured   GuildState = "configured"
)

// State reports whether the guild has a bottle channel.
func (g *Guild) State() GuildState {
	if g.BottleChannelID != nil && *g.BottleChannelID != "" {
		return GuildConfigured
	}
	return GuildUnconfigured
}

// IsPublic reports whether the guild published an invite. Independent of State.
func (g *Guild) IsPublic() bool {
	return g.Invite != nil && strings.TrimSpace(*g.Invite) != ""
}

// User holds per-person administrative flags.
type User struct {
	ID        string `gorm:"primaryKey;size:32"`
	IsAdmin   bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReactionRecord tracks whether one reactor's emoji on one delivered message is
// currently counted. It is state, not an event log.
type ReactionRecord struct {
	MessageID string `gorm:"primaryKey;size:32"`
	ReactorID string `gorm:"primaryKey;size:32"`
	Emoji     string `gorm:"primaryKey;size:64"`
	GuildID   string `gorm:"size:32;not null;index"`
	Active    bool   `gorm:"not null;default:false"`
	UpdatedAt time.Time
}

// Setting is a runtime configuration row that overrides environment values.
type Setting struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value string `gorm:"type:text"`
}

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&Setting{}, &Guild{}, &User{}, &Bottle{}, &ReactionRecord{},
	}
}
