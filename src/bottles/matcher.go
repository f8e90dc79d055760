package bottles

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/stake-plus/bottlebot/src/events"
	"github.com/stake-plus/bottlebot/src/metrics"
	"github.com/stake-plus/bottlebot/src/shared/models"
)

const defaultMaxClaimAttempts = 64

// ChannelResolver reports the bottle channel configured for a guild, or "" when
// the guild has none.
type ChannelResolver interface {
	BottleChannel(ctx context.Context, guildID string) (string, error)
}

// Inbound is a chat message handed over by the gateway. GuildID is empty for
// direct messages.
type Inbound struct {
	AuthorID      string
	GuildID       string
	ChannelID     string
	MessageID     string
	Content       string
	AttachmentURL string
}

// OutcomeStatus summarises what happened to a submitted bottle.
type OutcomeStatus string

const (
	OutcomePending        OutcomeStatus = "pending"
	OutcomeDelivered      OutcomeStatus = "delivered"
	OutcomeDeliveryFailed OutcomeStatus = "delivery_failed"
	// OutcomeClaimedByPeer means another arrival claimed this bottle while it
	// was looking for a partner; that matcher performs the delivery.
	OutcomeClaimedByPeer OutcomeStatus = "claimed_by_peer"
)

// DeliveryReport holds per-direction delivery errors for a matched pair.
type DeliveryReport struct {
	// Sent is the error delivering the new bottle to its partner's origin.
	Sent error
	// Received is the error delivering the partner's bottle to the new bottle's origin.
	Received error
}

// Outcome is the result of a submission. No match is a normal outcome.
type Outcome struct {
	Bottle   *models.Bottle
	Peer     *models.Bottle
	Status   OutcomeStatus
	Delivery DeliveryReport
}

const (
	pendingReply   = "Your bottle is drifting out to sea. No match yet, it will be delivered as soon as someone else sends one!"
	deliveredReply = "Your bottle was delivered! One washed up for you in return."
)

// ReplyText is the status message for the submitter, or "" when nothing
// should be sent (the sender was already notified of a failure, or a peer
// matcher is handling the exchange).
func (o *Outcome) ReplyText() string {
	switch o.Status {
	case OutcomePending:
		return pendingReply
	case OutcomeDelivered:
		return deliveredReply
	case OutcomeDeliveryFailed:
		if o.Delivery.Sent != nil {
			return ""
		}
		return deliveredReply
	default:
		return ""
	}
}

// Options tune a Matcher. Zero values pick defaults.
type Options struct {
	Strategy    Strategy
	Channels    ChannelResolver
	Events      events.Publisher
	Logger      *zap.Logger
	MaxAttempts int
}

// Matcher pairs new bottles with waiting ones and delivers both sides.
type Matcher struct {
	store       *Store
	sender      Sender
	strategy    Strategy
	channels    ChannelResolver
	events      events.Publisher
	log         *zap.Logger
	maxAttempts int
}

// NewMatcher wires a matcher over store and sender.
func NewMatcher(store *Store, sender Sender, opts Options) *Matcher {
	m := &Matcher{
		store:       store,
		sender:      sender,
		strategy:    opts.Strategy,
		channels:    opts.Channels,
		events:      opts.Events,
		log:         opts.Logger,
		maxAttempts: opts.MaxAttempts,
	}
	if m.strategy == nil {
		m.strategy = OldestFirst{}
	}
	if m.events == nil {
		m.events = events.Nop{}
	}
	if m.log == nil {
		m.log = zap.L()
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = defaultMaxClaimAttempts
	}
	return m
}

// Accept turns an inbound message into a bottle when it was posted in the
// guild's bottle channel or sent as a direct message. Anything else returns
// ErrNotBottleChannel without touching the store.
func (m *Matcher) Accept(ctx context.Context, in Inbound) (*Outcome, error) {
	var origin models.Origin
	if in.GuildID == "" {
		origin = models.DirectOrigin(in.AuthorID)
	} else {
		if m.channels == nil {
			return nil, ErrNotBottleChannel
		}
		channelID, err := m.channels.BottleChannel(ctx, in.GuildID)
		if err != nil {
			return nil, fmt.Errorf("resolve bottle channel: %w", err)
		}
		if channelID == "" || channelID != in.ChannelID {
			return nil, ErrNotBottleChannel
		}
		origin = models.GuildOrigin(in.GuildID, in.ChannelID)
	}

	return m.Submit(ctx, origin, in.AuthorID, in.MessageID, Content{Text: in.Content, AttachmentURL: in.AttachmentURL})
}

// Submit enqueues a bottle, tries to claim a partner and, on success, delivers
// both bottles.
func (m *Matcher) Submit(ctx context.Context, origin models.Origin, authorID, sourceMessageID string, content Content) (*Outcome, error) {
	b, err := m.store.Submit(ctx, origin, authorID, sourceMessageID, content)
	if err != nil {
		return nil, err
	}
	metrics.BottlesSubmitted.WithLabelValues(origin.Kind()).Inc()
	m.publish(ctx, events.TypeSubmitted, b, nil)

	peer, err := m.match(ctx, b)
	if errors.Is(err, ErrNotPending) {
		m.log.Debug("bottles: bottle claimed by a concurrent arrival", zap.Uint64("bottle_id", b.ID))
		return &Outcome{Bottle: b, Status: OutcomeClaimedByPeer}, nil
	}
	if err != nil {
		return nil, err
	}
	if peer == nil {
		return &Outcome{Bottle: b, Status: OutcomePending}, nil
	}

	metrics.BottlesMatched.Inc()
	m.publish(ctx, events.TypeMatched, b, map[string]string{"peer_id": events.Bottle(peer.ID)})

	out := &Outcome{Bottle: b, Peer: peer, Status: OutcomeDelivered}
	out.Delivery.Sent = m.deliver(ctx, b, peer.Origin())
	out.Delivery.Received = m.deliver(ctx, peer, b.Origin())
	if out.Delivery.Sent != nil || out.Delivery.Received != nil {
		out.Status = OutcomeDeliveryFailed
	}
	return out, nil
}

// match runs the claim loop. Every lost claim means the candidate left the
// Pending pool, so the loop ends once the pool is exhausted; maxAttempts only
// guards against a store that keeps proposing stale rows.
func (m *Matcher) match(ctx context.Context, b *models.Bottle) (*models.Bottle, error) {
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		candidate, err := m.strategy.Pick(ctx, m.store, b.OriginKey)
		if err != nil {
			return nil, fmt.Errorf("pick candidate: %w", err)
		}
		if candidate == nil {
			return nil, nil
		}
		if candidate.OriginKey == b.OriginKey || candidate.ID == b.ID {
			return nil, fmt.Errorf("strategy proposed bottle %d from the same origin", candidate.ID)
		}

		ok, err := m.store.Claim(ctx, candidate.ID, b.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			candidate.Status = models.BottleMatched
			candidate.PairedID = &b.ID
			b.Status = models.BottleMatched
			b.PairedID = &candidate.ID
			return candidate, nil
		}
		metrics.ClaimRaces.Inc()
	}

	m.log.Warn("bottles: claim attempts exhausted, leaving bottle pending",
		zap.Uint64("bottle_id", b.ID), zap.Int("attempts", m.maxAttempts))
	return nil, nil
}

// Redeliver retries delivery of a Matched bottle to its partner's origin. It is
// the operator path for failures; the pairing itself is never changed.
func (m *Matcher) Redeliver(ctx context.Context, id uint64) error {
	b, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if b.Status != models.BottleMatched || b.PairedID == nil {
		return ErrNotMatched
	}
	peer, err := m.store.Get(ctx, *b.PairedID)
	if err != nil {
		return fmt.Errorf("load partner %d: %w", *b.PairedID, err)
	}
	return m.deliver(ctx, b, peer.Origin())
}

// Expire expires one Pending bottle on operator request.
func (m *Matcher) Expire(ctx context.Context, id uint64) (bool, error) {
	changed, err := m.store.Expire(ctx, id)
	if err != nil || !changed {
		return changed, err
	}
	metrics.BottlesExpired.Inc()
	m.publish(ctx, events.TypeExpired, &models.Bottle{ID: id}, nil)
	return true, nil
}

func (m *Matcher) publish(ctx context.Context, eventType string, b *models.Bottle, extra map[string]string) {
	fields := map[string]string{"bottle_id": events.Bottle(b.ID)}
	if b.GuildID != nil {
		fields["guild_id"] = *b.GuildID
	}
	for k, v := range extra {
		fields[k] = v
	}
	if err := m.events.Publish(ctx, eventType, fields); err != nil {
		m.log.Warn("bottles: publish event failed", zap.String("type", eventType), zap.Error(err))
	}
}
