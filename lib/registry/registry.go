// Package registry stores the endpoints subscribed to trailer alerts.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fiffu/trailerwatch/lib/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("subscription not found")

type Registry struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db, func() time.Time { return time.Now().UTC() }}
}

func (r *Registry) ListActive(ctx context.Context) (models.Subscriptions, error) {
	var subs models.Subscriptions
	tx := r.db.WithContext(ctx).Where("active = ?", true).Order("id").Find(&subs)
	return subs, tx.Error
}

func (r *Registry) List(ctx context.Context) (models.Subscriptions, error) {
	var subs models.Subscriptions
	tx := r.db.WithContext(ctx).Order("id").Find(&subs)
	return subs, tx.Error
}

func (r *Registry) Get(ctx context.Context, endpointID string) (*models.Subscription, error) {
	sub := &models.Subscription{}
	tx := r.db.WithContext(ctx).Where("endpoint_id = ?", endpointID).First(sub)
	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return sub, nil
}

// Add registers endpointID, or overwrites the credential of an existing
// registration and reactivates it.
func (r *Registry) Add(ctx context.Context, endpointID, platform, credential string) (*models.Subscription, error) {
	if endpointID == "" {
		return nil, errors.New("registry: empty endpoint id")
	}
	sub := &models.Subscription{
		EndpointID: endpointID,
		Platform:   platform,
		Credential: credential,
		Active:     true,
	}
	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "endpoint_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"platform":   platform,
				"credential": credential,
				"active":     true,
				"dead_since": nil,
				"last_error": "",
				"deleted_at": nil,
				"updated_at": r.now(),
			}),
		}).
		Create(sub)
	if err := tx.Error; err != nil {
		return nil, err
	}
	return r.Get(ctx, endpointID)
}

// Remove deletes the registration outright.
func (r *Registry) Remove(ctx context.Context, endpointID string) error {
	tx := r.db.WithContext(ctx).
		Unscoped().
		Where("endpoint_id = ?", endpointID).
		Delete(&models.Subscription{})
	return tx.Error
}

// Unsubscribe deactivates the registration on request of its owner.
func (r *Registry) Unsubscribe(ctx context.Context, endpointID string) error {
	return r.deactivate(ctx, endpointID, map[string]any{"active": false})
}

// MarkDead deactivates an endpoint the transport reported as permanently gone.
// It stays inactive until someone subscribes it again.
func (r *Registry) MarkDead(ctx context.Context, endpointID, reason string) error {
	return r.deactivate(ctx, endpointID, map[string]any{
		"active":     false,
		"dead_since": sql.NullTime{Time: r.now(), Valid: true},
		"last_error": reason,
	})
}

func (r *Registry) deactivate(ctx context.Context, endpointID string, updates map[string]any) error {
	tx := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("endpoint_id = ?", endpointID).
		Updates(updates)
	if err := tx.Error; err != nil {
		return err
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
