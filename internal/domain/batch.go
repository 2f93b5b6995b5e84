package domain

import (
	"fmt"
	"time"
)

// BatchType identifies the kind of workload a batch carries. It is fixed at
// creation and routes results back to the right handler.
type BatchType string

const (
	BatchTypeParsing      BatchType = "parsing"
	BatchTypeCvEmbedding  BatchType = "cv_embedding"
	BatchTypeJobEmbedding BatchType = "job_embedding"
	BatchTypeExplanation  BatchType = "explanation"
)

// AllBatchTypes lists every valid batch type. Handler registries are checked
// against this set at construction time.
var AllBatchTypes = []BatchType{
	BatchTypeParsing,
	BatchTypeCvEmbedding,
	BatchTypeJobEmbedding,
	BatchTypeExplanation,
}

// ParseBatchType converts a string into a BatchType.
// Parameters:
//   - s: raw type string.
// Returns:
//   - BatchType: parsed type.
//   - error: non-nil if s is not a known batch type.
func ParseBatchType(s string) (BatchType, error) {
	t := BatchType(s)
	for _, known := range AllBatchTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown batch type %q", s)
}

// Endpoint returns the provider endpoint path requests of this type target.
func (t BatchType) Endpoint() string {
	switch t {
	case BatchTypeParsing, BatchTypeExplanation:
		return "/v1/chat/completions"
	case BatchTypeCvEmbedding, BatchTypeJobEmbedding:
		return "/v1/embeddings"
	default:
		return ""
	}
}

// Valid reports whether the type is a member of the closed set.
func (t BatchType) Valid() bool {
	_, err := ParseBatchType(string(t))
	return err == nil
}

// BatchStatus is the provider-driven lifecycle status of a batch.
type BatchStatus string

const (
	BatchStatusValidating BatchStatus = "validating"
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusFinalizing BatchStatus = "finalizing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
	BatchStatusCancelled  BatchStatus = "cancelled"
	BatchStatusExpired    BatchStatus = "expired"
)

// Terminal reports whether no further automatic transition occurs from s.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusCancelled, BatchStatusExpired:
		return true
	}
	return false
}

// RequestCounts is the last known per-batch request snapshot from the provider.
type RequestCounts struct {
	Total     int `gorm:"column:count_total;default:0" json:"total"`
	Completed int `gorm:"column:count_completed;default:0" json:"completed"`
	Failed    int `gorm:"column:count_failed;default:0" json:"failed"`
}

// BatchRecord is the local representation of one remote bulk-inference job.
// It is created by the submitter in status validating and mutated only by the
// poller; once the status is terminal and CompletedAt is set the record is
// immutable.
type BatchRecord struct {
	ID           string        `gorm:"type:text;primaryKey" json:"id"`
	RemoteID     string        `gorm:"type:text;not null;uniqueIndex:idx_batch_records_remote" json:"remote_id"`
	Type         BatchType     `gorm:"type:text;not null;index:idx_batch_records_type" json:"type"`
	Status       BatchStatus   `gorm:"type:text;not null;index:idx_batch_records_status;default:validating" json:"status"`
	InputFileID  string        `gorm:"type:text;not null" json:"input_file_id"`
	OutputFileID string        `gorm:"type:text" json:"output_file_id,omitempty"`
	ErrorFileID  string        `gorm:"type:text" json:"error_file_id,omitempty"`
	Counts       RequestCounts `gorm:"embedded" json:"counts"`
	ClaimedUntil *time.Time    `gorm:"index:idx_batch_records_claim" json:"claimed_until,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// TableName returns the database table name for BatchRecord.
func (BatchRecord) TableName() string {
	return "batch_records"
}
