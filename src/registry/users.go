package registry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stake-plus/bottlebot/src/bottles"
	"github.com/stake-plus/bottlebot/src/shared/models"
)

// Users is the user registry. bootstrap is the one identity allowed to grant
// and revoke admin rights.
type Users struct {
	db        *gorm.DB
	store     *bottles.Store
	bootstrap string
	log       *zap.Logger
}

func NewUsers(db *gorm.DB, store *bottles.Store, bootstrapID string) *Users {
	return &Users{db: db, store: store, bootstrap: bootstrapID, log: zap.L()}
}

// Bootstrap returns the configured bootstrap identity.
func (u *Users) Bootstrap() string { return u.bootstrap }

// GetOrCreate returns the user, creating a non-admin record when missing.
func (u *Users) GetOrCreate(ctx context.Context, id string) (*models.User, bool, error) {
	if id == "" {
		return nil, false, fmt.Errorf("user id is empty")
	}
	res := u.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&models.User{ID: id})
	if res.Error != nil {
		return nil, false, fmt.Errorf("create user %s: %w", id, res.Error)
	}
	var user models.User
	if err := u.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, false, fmt.Errorf("load user %s: %w", id, err)
	}
	return &user, res.RowsAffected == 1, nil
}

// IsAdmin reports the admin flag; unknown users are not admins.
func (u *Users) IsAdmin(ctx context.Context, id string) (bool, error) {
	var user models.User
	err := u.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load user %s: %w", id, err)
	}
	return user.IsAdmin, nil
}

// SetAdmin stores the flag unconditionally. Used for bootstrap promotion.
func (u *Users) SetAdmin(ctx context.Context, id string, admin bool) error {
	err := u.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_admin", "updated_at"}),
	}).Create(&models.User{ID: id, IsAdmin: admin}).Error
	if err != nil {
		return fmt.Errorf("set admin %s: %w", id, err)
	}
	return nil
}

// ToggleAdmin flips target's admin flag and returns the new value. Only the
// bootstrap identity may call it.
func (u *Users) ToggleAdmin(ctx context.Context, requesterID, targetID string) (bool, error) {
	if u.bootstrap == "" || requesterID != u.bootstrap {
		return false, ErrPermission
	}
	if targetID == "" {
		return false, fmt.Errorf("toggle admin: target is empty")
	}

	var now bool
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.User{ID: targetID}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", targetID).
			Update("is_admin", gorm.Expr("NOT is_admin")).Error; err != nil {
			return err
		}
		var user models.User
		if err := tx.First(&user, "id = ?", targetID).Error; err != nil {
			return err
		}
		now = user.IsAdmin
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("toggle admin %s: %w", targetID, err)
	}
	u.log.Info("registry: admin toggled", zap.String("user_id", targetID), zap.Bool("is_admin", now))
	return now, nil
}

// Remove deletes the user and expires their Pending direct-message bottles.
func (u *Users) Remove(ctx context.Context, id string) (int64, error) {
	var expired int64
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.User{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		n, err := u.store.ExpireOrigin(ctx, tx, models.DirectOrigin(id).Key())
		if err != nil {
			return err
		}
		expired = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("remove user %s: %w", id, err)
	}
	u.log.Info("registry: user removed", zap.String("user_id", id), zap.Int64("expired_bottles", expired))
	return expired, nil
}
