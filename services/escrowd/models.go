package main

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IdempotencyRecord stores a replayed response keyed by API key and
// Idempotency-Key header. RequestHash detects key reuse with a different
// body.
type IdempotencyRecord struct {
	APIKey      string `gorm:"primaryKey;size:128"`
	Key         string `gorm:"primaryKey;size:128"`
	RequestHash string `gorm:"size:64;not null"`
	Status      int    `gorm:"not null"`
	Response    string
	CreatedAt   time.Time
}

// AuditRecord captures one handled request for the audit trail.
type AuditRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	APIKey    string    `gorm:"size:128;index"`
	Method    string    `gorm:"size:8"`
	Path      string    `gorm:"size:256"`
	Status    int
	CreatedAt time.Time `gorm:"index"`
}

// AutoMigrate creates or updates the escrowd tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&IdempotencyRecord{}, &AuditRecord{})
}
