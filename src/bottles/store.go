package bottles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/stake-plus/bottlebot/src/shared/models"
)

var (
	ErrNotFound         = errors.New("bottle not found")
	ErrNotPending       = errors.New("bottle is no longer pending")
	ErrNotMatched       = errors.New("bottle is not matched")
	ErrEmptyContent     = errors.New("bottle has no content")
	ErrInvalidOrigin    = errors.New("bottle origin must be a guild channel or a user")
	ErrNotBottleChannel = errors.New("message was not posted in a bottle channel")
)

// Content is what a bottle carries.
type Content struct {
	Text          string
	AttachmentURL string
}

// Empty reports whether there is nothing to deliver.
func (c Content) Empty() bool {
	return strings.TrimSpace(c.Text) == "" && strings.TrimSpace(c.AttachmentURL) == ""
}

// Store is the durable bottle queue.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore wraps a migrated gorm handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Submit persists a new Pending bottle.
func (s *Store) Submit(ctx context.Context, origin models.Origin, authorID, sourceMessageID string, content Content) (*models.Bottle, error) {
	if !origin.Valid() {
		return nil, ErrInvalidOrigin
	}
	if content.Empty() {
		return nil, ErrEmptyContent
	}

	b := &models.Bottle{
		OriginKey:       origin.Key(),
		AuthorID:        authorID,
		SourceMessageID: sourceMessageID,
		Content:         strings.TrimSpace(content.Text),
		Status:          models.BottlePending,
		CreatedAt:       s.now().UTC(),
	}
	if origin.IsDirect() {
		b.UserID = strPtr(origin.UserID)
	} else {
		b.GuildID = strPtr(origin.GuildID)
		b.ChannelID = strPtr(origin.ChannelID)
	}
	if url := strings.TrimSpace(content.AttachmentURL); url != "" {
		b.AttachmentURL = &url
	}

	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return nil, fmt.Errorf("create bottle: %w", err)
	}
	return b, nil
}

// Get loads one bottle by id.
func (s *Store) Get(ctx context.Context, id uint64) (*models.Bottle, error) {
	var b models.Bottle
	if err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// ByDeliveredMessage finds the bottle whose delivered copy has messageID.
func (s *Store) ByDeliveredMessage(ctx context.Context, messageID string) (*models.Bottle, error) {
	var b models.Bottle
	if err := s.db.WithContext(ctx).First(&b, "delivered_message_id = ?", messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// FindCandidate returns the oldest Pending bottle from a different origin, or
// nil when there is none. The result is advisory; Claim re-validates it.
func (s *Store) FindCandidate(ctx context.Context, excludingOrigin string) (*models.Bottle, error) {
	candidates, err := s.ListCandidates(ctx, excludingOrigin, 1)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

// ListCandidates returns up to limit Pending bottles from other origins, oldest first.
func (s *Store) ListCandidates(ctx context.Context, excludingOrigin string, limit int) ([]models.Bottle, error) {
	if limit <= 0 {
		limit = 1
	}
	var out []models.Bottle
	err := s.db.WithContext(ctx).
		Where("status = ? AND origin_key <> ?", models.BottlePending, excludingOrigin).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	return out, nil
}

// Claim pairs candidateID with newID. Both rows move Pending -> Matched in one
// transaction, each guarded by a compare-and-set on status, and rows are
// touched in ascending id order so two claims over the same pair cannot
// deadlock. It returns false when the candidate was taken first, and
// ErrNotPending when newID itself was claimed by another matcher. In either
// case nothing is written.
func (s *Store) Claim(ctx context.Context, candidateID, newID uint64) (bool, error) {
	if candidateID == newID {
		return false, fmt.Errorf("claim: bottle %d cannot pair with itself", newID)
	}

	errCandidateLost := errors.New("candidate lost")
	now := s.now().UTC()

	type step struct {
		id, partner uint64
		lost        error
	}
	steps := []step{
		{id: candidateID, partner: newID, lost: errCandidateLost},
		{id: newID, partner: candidateID, lost: ErrNotPending},
	}
	if newID < candidateID {
		steps[0], steps[1] = steps[1], steps[0]
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, st := range steps {
			res := tx.Model(&models.Bottle{}).
				Where("id = ? AND status = ? AND paired_id IS NULL", st.id, models.BottlePending).
				Updates(map[string]interface{}{
					"status":     models.BottleMatched,
					"paired_id":  st.partner,
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return st.lost
			}
		}
		return nil
	})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errCandidateLost):
		return false, nil
	case errors.Is(err, ErrNotPending):
		return false, ErrNotPending
	default:
		return false, fmt.Errorf("claim %d for %d: %w", candidateID, newID, err)
	}
}

// MarkDelivered moves a Matched bottle to Delivered and records the id of the
// message that carried its content.
func (s *Store) MarkDelivered(ctx context.Context, id uint64, deliveredMessageID string) error {
	now := s.now().UTC()
	res := s.db.WithContext(ctx).Model(&models.Bottle{}).
		Where("id = ? AND status = ?", id, models.BottleMatched).
		Updates(map[string]interface{}{
			"status":               models.BottleDelivered,
			"delivered_message_id": deliveredMessageID,
			"delivered_at":         now,
			"last_error":           nil,
			"updated_at":           now,
		})
	if res.Error != nil {
		return fmt.Errorf("mark delivered %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotMatched
	}
	return nil
}

// RecordFailure stores the last delivery error on a Matched bottle.
func (s *Store) RecordFailure(ctx context.Context, id uint64, cause error) error {
	msg := "delivery failed"
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return s.db.WithContext(ctx).Model(&models.Bottle{}).
		Where("id = ? AND status = ?", id, models.BottleMatched).
		Updates(map[string]interface{}{"last_error": msg, "updated_at": s.now().UTC()}).Error
}

// Expire moves a Pending bottle to Expired. It is a no-op for any other status
// and reports whether the bottle changed.
func (s *Store) Expire(ctx context.Context, id uint64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Bottle{}).
		Where("id = ? AND status = ?", id, models.BottlePending).
		Updates(map[string]interface{}{"status": models.BottleExpired, "updated_at": s.now().UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("expire %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ExpireOlderThan expires every Pending bottle created before cutoff.
func (s *Store) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Bottle{}).
		Where("status = ? AND created_at < ?", models.BottlePending, cutoff.UTC()).
		Updates(map[string]interface{}{"status": models.BottleExpired, "updated_at": s.now().UTC()})
	if res.Error != nil {
		return 0, fmt.Errorf("expire older than %s: %w", cutoff.Format(time.RFC3339), res.Error)
	}
	return res.RowsAffected, nil
}

// ExpireOrigin expires the Pending bottles of one origin key. tx lets callers
// run it inside their own transaction; nil uses the store handle.
func (s *Store) ExpireOrigin(ctx context.Context, tx *gorm.DB, originKey string) (int64, error) {
	if tx == nil {
		tx = s.db
	}
	res := tx.WithContext(ctx).Model(&models.Bottle{}).
		Where("status = ? AND origin_key = ?", models.BottlePending, originKey).
		Updates(map[string]interface{}{"status": models.BottleExpired, "updated_at": s.now().UTC()})
	if res.Error != nil {
		return 0, fmt.Errorf("expire origin %s: %w", originKey, res.Error)
	}
	return res.RowsAffected, nil
}

// ListByStatus returns bottles in one status, oldest first.
func (s *Store) ListByStatus(ctx context.Context, status models.BottleStatus, limit int) ([]models.Bottle, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []models.Bottle
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountByStatus returns how many bottles sit in each status.
func (s *Store) CountByStatus(ctx context.Context) (map[models.BottleStatus]int64, error) {
	var rows []struct {
		Status models.BottleStatus
		Total  int64
	}
	err := s.db.WithContext(ctx).Model(&models.Bottle{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[models.BottleStatus]int64{
		models.BottlePending:   0,
		models.BottleMatched:   0,
		models.BottleDelivered: 0,
		models.BottleExpired:   0,
	}
	for _, r := range rows {
		out[r.Status] = r.Total
	}
	return out, nil
}

func strPtr(s string) *string { return &s }
