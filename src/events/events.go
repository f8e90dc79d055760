// Package events publishes bottle lifecycle notifications to a Redis stream
// read by the dashboard. Payloads carry identifiers only: never bottle content
// and never author identities.
package events

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultStream = "bottles.events"

const (
	TypeSubmitted      = "bottle.submitted"
	TypeMatched        = "bottle.matched"
	TypeDelivered      = "bottle.delivered"
	TypeDeliveryFailed = "bottle.delivery_failed"
	TypeExpired        = "bottle.expired"
	TypeXP             = "guild.xp"
	TypeGuildRemoved   = "guild.removed"
)

// Publisher emits one event. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, eventType string, fields map[string]string) error
}

// Nop discards events. Used when no Redis URL is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, map[string]string) error { return nil }

// Stream appends events to a capped Redis stream.
type Stream struct {
	rdb    *redis.Client
	stream string
	maxLen int64
	now    func() time.Time
}

// NewStream returns a publisher writing to stream (DefaultStream when empty).
func NewStream(rdb *redis.Client, stream string) *Stream {
	if stream == "" {
		stream = DefaultStream
	}
	return &Stream{rdb: rdb, stream: stream, maxLen: 10000, now: time.Now}
}

func (s *Stream) Publish(ctx context.Context, eventType string, fields map[string]string) error {
	values := make(map[string]interface{}, len(fields)+3)
	for k, v := range fields {
		values[k] = v
	}
	values["event_id"] = uuid.NewString()
	values["type"] = eventType
	values["time"] = strconv.FormatInt(s.now().Unix(), 10)

	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err()
}

// Bottle formats a bottle id as an event field value.
func Bottle(id uint64) string { return strconv.FormatUint(id, 10) }
