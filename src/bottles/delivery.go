package bottles

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stake-plus/bottlebot/src/events"
	"github.com/stake-plus/bottlebot/src/logging"
	"github.com/stake-plus/bottlebot/src/metrics"
	"github.com/stake-plus/bottlebot/src/shared/models"
)

// Outbound is a bottle's content addressed to an origin. It never carries the
// author.
type Outbound struct {
	Target        models.Origin
	Text          string
	AttachmentURL string
}

// Sender is the messaging gateway as seen by the matcher.
type Sender interface {
	// Send delivers content and returns the id of the message that carries it.
	Send(ctx context.Context, msg Outbound) (string, error)
	// Reply posts a status text to an origin, threaded on replyTo when set.
	Reply(ctx context.Context, to models.Origin, replyTo, text string) error
}

// deliver sends b's content to target. On success b becomes Delivered; on
// failure b stays Matched, the error is recorded and b's sender is told.
func (m *Matcher) deliver(ctx context.Context, b *models.Bottle, target models.Origin) error {
	messageID, err := m.sender.Send(ctx, Outbound{
		Target:        target,
		Text:          b.Content,
		AttachmentURL: b.Attachment(),
	})
	if err != nil {
		m.failDelivery(ctx, b, err)
		return fmt.Errorf("deliver bottle %d: %w", b.ID, err)
	}

	if err := m.store.MarkDelivered(ctx, b.ID, messageID); err != nil {
		m.log.Error("bottles: delivered but could not record it",
			zap.Uint64("bottle_id", b.ID), zap.String("message_id", messageID), zap.Error(err))
		return fmt.Errorf("record delivery of bottle %d: %w", b.ID, err)
	}
	b.Status = models.BottleDelivered
	b.DeliveredMessageID = &messageID

	metrics.Deliveries.WithLabelValues("ok").Inc()
	m.publish(ctx, events.TypeDelivered, b, nil)
	return nil
}

func (m *Matcher) failDelivery(ctx context.Context, b *models.Bottle, cause error) {
	metrics.Deliveries.WithLabelValues("failed").Inc()
	m.log.Warn("bottles: delivery failed",
		zap.Uint64("bottle_id", b.ID), zap.Bool("rate_limited", logging.IsRateLimit(cause)), zap.Error(cause))

	if err := m.store.RecordFailure(ctx, b.ID, cause); err != nil {
		m.log.Error("bottles: record delivery failure", zap.Uint64("bottle_id", b.ID), zap.Error(err))
	}
	m.publish(ctx, events.TypeDeliveryFailed, b, nil)

	if err := m.sender.Reply(ctx, b.Origin(), b.SourceMessageID, FailureText(cause)); err != nil {
		m.log.Warn("bottles: could not report delivery failure to sender",
			zap.Uint64("bottle_id", b.ID), zap.Error(err))
	}
}

// FailureText is the reply shown to a sender whose bottle could not be delivered.
func FailureText(cause error) string {
	if logging.IsRateLimit(cause) {
		return "Your bottle was matched but could not be delivered right now (rate limited). An operator can retry it."
	}
	return "Your bottle was matched but could not be delivered. An operator can retry it."
}
