package main

import (
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrIdempotencyMismatch is returned when an idempotency key is reused with a
// different request body.
var ErrIdempotencyMismatch = errors.New("idempotency key reuse with different request body")

// Store persists idempotency records and the audit trail.
type Store struct {
	db *gorm.DB
}

// OpenStore opens (or creates) the sqlite database at path and migrates the
// schema.
func OpenStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing gorm handle, primarily for tests.
func NewStoreWithDB(db *gorm.DB) (*Store, error) {
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// LookupIdempotency returns the cached response for (apiKey, key), or nil
// when the key is unused. A hash mismatch yields ErrIdempotencyMismatch.
func (s *Store) LookupIdempotency(apiKey, key, requestHash string) (*IdempotencyRecord, error) {
	var record IdempotencyRecord
	err := s.db.First(&record, "api_key = ? AND key = ?", apiKey, key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if record.RequestHash != requestHash {
		return nil, ErrIdempotencyMismatch
	}
	return &record, nil
}

// SaveIdempotency records the response for later replay. A concurrent insert
// of the same key wins silently; the stored response is authoritative.
func (s *Store) SaveIdempotency(record IdempotencyRecord) error {
	record.CreatedAt = time.Now()
	err := s.db.Create(&record).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

// RecordAudit appends one entry to the audit trail.
func (s *Store) RecordAudit(apiKey, method, path string, status int) error {
	return s.db.Create(&AuditRecord{
		ID:        uuid.New(),
		APIKey:    apiKey,
		Method:    method,
		Path:      path,
		Status:    status,
		CreatedAt: time.Now(),
	}).Error
}
