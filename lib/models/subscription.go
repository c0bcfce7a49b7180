package models

import (
	"database/sql"

	"gorm.io/gorm"
)

// Subscription is a delivery endpoint registered to receive trailer alerts.
type Subscription struct {
	gorm.Model
	EndpointID string `gorm:"uniqueIndex;not null"`
	Platform   string `gorm:"not null"` // Key into the sender registry
	Credential string
	Active     bool `gorm:"index"`
	DeadSince  sql.NullTime
	LastError  string
}

type Subscriptions []Subscription
