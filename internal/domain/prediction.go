package domain

import "time"

// Prediction represents a scored candidate/job match awaiting an LLM-written
// explanation. The match score itself is produced elsewhere; the orchestrator
// only drives the explanation concern.
type Prediction struct {
	ID            string     `gorm:"type:text;primaryKey" json:"id"`
	CandidateID   string     `gorm:"type:text;not null;index:idx_predictions_candidate" json:"candidate_id"`
	JobID         string     `gorm:"type:text;not null;index:idx_predictions_job" json:"job_id"`
	Score         float64    `json:"score"`
	Explanation   string     `gorm:"type:text" json:"explanation,omitempty"`
	ExplainStatus ItemStatus `gorm:"type:text;index:idx_predictions_explain_status;default:pending_batch" json:"explain_status"`
	ExplainError  string     `gorm:"type:text" json:"explain_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Prediction.
func (Prediction) TableName() string {
	return "predictions"
}
