// Package db persists the append-only attempt log (spec.md §6 "Persisted
// outputs") via GORM/MySQL, the same stack and connection style the teacher
// uses for its asset-snapshot recorder. Each row gets a uuid.NewString()
// correlation ID (google/uuid, the same ID-generation idiom the pack's
// josephblackelite-nhbchain payments-gateway uses for quote/invoice IDs) so
// an operator can tie a logged report line back to one attempt row without
// relying on the composite (chain_id, borrower, timestamp) key.
package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AttemptStatus is the one-row-per-scoring-decision status enum.
type AttemptStatus string

const (
	StatusSent       AttemptStatus = "sent"
	StatusDryRun     AttemptStatus = "dry_run"
	StatusPolicySkip AttemptStatus = "policy_skip"
	StatusGapSkip    AttemptStatus = "gap_skip"
	StatusThrottled  AttemptStatus = "throttled"
	StatusError      AttemptStatus = "error"
)

// AttemptRecord is the database model for one scoring decision.
type AttemptRecord struct {
	ID         uint          `gorm:"primaryKey;autoIncrement"`
	UUID       string        `gorm:"size:36;uniqueIndex;not null"`
	Timestamp  time.Time     `gorm:"index;not null"`
	ChainID    int64         `gorm:"index;not null"`
	Borrower   string        `gorm:"index;not null;size:42"`
	Protocol   string        `gorm:"size:32;not null"`
	Status     AttemptStatus `gorm:"size:16;index;not null"`
	Reason     string        `gorm:"size:255"`
	TxHash     string        `gorm:"size:66"`
	CandidateJSON string     `gorm:"type:json"`
	PlanJSON      string     `gorm:"type:json"`
	CreatedAt  time.Time     `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (AttemptRecord) TableName() string {
	return "attempts"
}

// AttemptInput is what callers (chainagent, execution) hand the recorder;
// Candidate/Plan are marshaled to JSON snapshots at write time.
type AttemptInput struct {
	Timestamp time.Time
	ChainID   int64
	Borrower  string
	Protocol  string
	Status    AttemptStatus
	Reason    string
	TxHash    string
	Candidate interface{}
	Plan      interface{}
}

// AttemptRecorder implements the append-only attempt log via GORM/MySQL.
type AttemptRecorder struct {
	db *gorm.DB
}

// NewAttemptRecorder creates a new AttemptRecorder instance.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func NewAttemptRecorder(dsn string) (*AttemptRecorder, error) {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	return NewAttemptRecorderWithDB(gdb)
}

// NewAttemptRecorderWithDB creates a new AttemptRecorder with an existing
// GORM DB instance, auto-migrating the attempts table.
func NewAttemptRecorderWithDB(gdb *gorm.DB) (*AttemptRecorder, error) {
	if err := gdb.AutoMigrate(&AttemptRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &AttemptRecorder{db: gdb}, nil
}

// RecordAttempt appends one row to the attempt log.
func (r *AttemptRecorder) RecordAttempt(in AttemptInput) error {
	record := AttemptRecord{
		UUID:      uuid.NewString(),
		Timestamp: in.Timestamp,
		ChainID:   in.ChainID,
		Borrower:  in.Borrower,
		Protocol:  in.Protocol,
		Status:    in.Status,
		Reason:    in.Reason,
		TxHash:    in.TxHash,
	}

	if in.Candidate != nil {
		blob, err := json.Marshal(in.Candidate)
		if err != nil {
			return fmt.Errorf("failed to marshal candidate snapshot: %w", err)
		}
		record.CandidateJSON = string(blob)
	}
	if in.Plan != nil {
		blob, err := json.Marshal(in.Plan)
		if err != nil {
			return fmt.Errorf("failed to marshal plan snapshot: %w", err)
		}
		record.PlanJSON = string(blob)
	}

	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to record attempt: %w", result.Error)
	}
	return nil
}

// GetDB returns the underlying GORM DB instance for advanced queries.
func (r *AttemptRecorder) GetDB() *gorm.DB {
	return r.db
}

// Close closes the database connection.
func (r *AttemptRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}

// AttemptsByChain retrieves attempts for one chain within a time range,
// ordered oldest first. Nothing in this module calls it; the fail-rate
// circuit breaker keeps its own in-memory window and does not replay it.
func (r *AttemptRecorder) AttemptsByChain(chainID int64, since time.Time) ([]AttemptRecord, error) {
	var records []AttemptRecord
	result := r.db.Where("chain_id = ? AND timestamp >= ?", chainID, since).
		Order("timestamp ASC").
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query attempts by chain: %w", result.Error)
	}
	return records, nil
}

// CountByStatus returns the number of attempts with the given status for a
// chain since the given time. Nothing in this module calls it.
func (r *AttemptRecorder) CountByStatus(chainID int64, status AttemptStatus, since time.Time) (int64, error) {
	var count int64
	result := r.db.Model(&AttemptRecord{}).
		Where("chain_id = ? AND status = ? AND timestamp >= ?", chainID, status, since).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count attempts by status: %w", result.Error)
	}
	return count, nil
}
