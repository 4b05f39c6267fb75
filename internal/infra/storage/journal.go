package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ExecutionRecord is one audited execution outcome: a filled or rejected
// OPEN, or a CLOSE. Monetary fields are stored as decimal strings.
type ExecutionRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CorrelationID string    `gorm:"index" json:"correlation_id"`
	Symbol        string    `gorm:"index" json:"symbol"`
	Direction     string    `json:"direction"`
	Volume        string    `json:"volume"`
	Price         string    `json:"price"`
	Ticket        int64     `gorm:"index" json:"ticket"`
	Status        string    `json:"status"` // FILLED, REJECTED, CLOSED
	Reason        string    `json:"reason"` // machine-readable code on rejection
	LatencyMS     int64     `json:"latency_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// Journal is the append-only execution audit trail.
type Journal struct {
	db *gorm.DB
}

// NewJournal opens (or creates) the sqlite journal at path.
func NewJournal(path string) (*Journal, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(&ExecutionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	return &Journal{db: db}, nil
}

// Append records one execution outcome.
func (j *Journal) Append(rec *ExecutionRecord) error {
	return j.db.Create(rec).Error
}

// Recent returns the latest records, newest first.
func (j *Journal) Recent(limit int) ([]ExecutionRecord, error) {
	var records []ExecutionRecord
	err := j.db.Order("id DESC").Limit(limit).Find(&records).Error
	return records, err
}

// BySymbol returns the latest records for one symbol, newest first.
func (j *Journal) BySymbol(symbol string, limit int) ([]ExecutionRecord, error) {
	var records []ExecutionRecord
	err := j.db.Where("symbol = ?", symbol).Order("id DESC").Limit(limit).Find(&records).Error
	return records, err
}

// CountByStatus returns the number of records carrying status.
func (j *Journal) CountByStatus(status string) (int64, error) {
	var n int64
	err := j.db.Model(&ExecutionRecord{}).Where("status = ?", status).Count(&n).Error
	return n, err
}
