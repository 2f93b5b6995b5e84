package domain

import "time"

// Job represents a job posting tracked through embedding.
type Job struct {
	ID          string     `gorm:"type:text;primaryKey" json:"id"`
	Title       string     `gorm:"type:text;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	EmbedStatus ItemStatus `gorm:"type:text;index:idx_jobs_embed_status;default:pending_batch" json:"embed_status"`
	EmbedError  string     `gorm:"type:text" json:"embed_error,omitempty"`
	EmbedModel  string     `gorm:"type:text" json:"embed_model,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string {
	return "jobs"
}
