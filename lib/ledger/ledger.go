// Package ledger records which trailer videos have already been distributed.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/fiffu/trailerwatch/lib/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db, func() time.Time { return time.Now().UTC() }}
}

func (l *Ledger) WasSeen(ctx context.Context, videoID string) (bool, error) {
	var count int64
	tx := l.db.WithContext(ctx).
		Model(&models.SeenTrailer{}).
		Where("video_id = ?", videoID).
		Count(&count)
	if err := tx.Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkSeen claims videoID. inserted is false when the video was already in the
// ledger; that is not an error. The claim is a single insert relying on the
// unique index, so concurrent callers cannot both win.
func (l *Ledger) MarkSeen(ctx context.Context, videoID string) (inserted bool, err error) {
	if videoID == "" {
		return false, errors.New("ledger: empty video id")
	}
	row := &models.SeenTrailer{VideoID: videoID, FirstSeenAt: l.now()}
	tx := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "video_id"}},
			DoNothing: true,
		}).
		Create(row)
	if err := tx.Error; err != nil {
		return false, err
	}
	return tx.RowsAffected == 1, nil
}

// SeenSince lists ledger rows first seen at or after t, newest first.
func (l *Ledger) SeenSince(ctx context.Context, t time.Time) (models.SeenTrailers, error) {
	var rows models.SeenTrailers
	tx := l.db.WithContext(ctx).
		Where("first_seen_at >= ?", t).
		Order("first_seen_at desc").
		Find(&rows)
	return rows, tx.Error
}

// Forget drops videoID from the ledger so a later run may distribute it again.
func (l *Ledger) Forget(ctx context.Context, videoID string) (bool, error) {
	tx := l.db.WithContext(ctx).Where("video_id = ?", videoID).Delete(&models.SeenTrailer{})
	if err := tx.Error; err != nil {
		return false, err
	}
	return tx.RowsAffected > 0, nil
}
