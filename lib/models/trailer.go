package models

import "time"

// SeenTrailer is one row of the dedup ledger. A VideoID is stored at most once.
type SeenTrailer struct {
	ID          uint      `gorm:"primaryKey"`
	VideoID     string    `gorm:"uniqueIndex;not null"`
	FirstSeenAt time.Time `gorm:"index;not null"`
}

type SeenTrailers []SeenTrailer
