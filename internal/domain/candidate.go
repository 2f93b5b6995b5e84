package domain

import "time"

// Candidate represents an uploaded résumé tracked through extraction,
// LLM parsing, and embedding. The orchestrator owns only the per-concern
// status fields; the rest belongs to the surrounding application.
type Candidate struct {
	ID            string     `gorm:"type:text;primaryKey" json:"id"`
	FileKey       string     `gorm:"type:text" json:"file_key"`
	ExtractedText string     `gorm:"type:text" json:"extracted_text,omitempty"`
	ParsedProfile JSONMap    `gorm:"type:text" json:"parsed_profile,omitempty"`
	ParseStatus   ItemStatus `gorm:"type:text;index:idx_candidates_parse_status;default:pending_batch" json:"parse_status"`
	ParseError    string     `gorm:"type:text" json:"parse_error,omitempty"`
	EmbedStatus   ItemStatus `gorm:"type:text;index:idx_candidates_embed_status;default:pending_batch" json:"embed_status"`
	EmbedError    string     `gorm:"type:text" json:"embed_error,omitempty"`
	EmbedModel    string     `gorm:"type:text" json:"embed_model,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Candidate.
func (Candidate) TableName() string {
	return "candidates"
}

// ParsedResume is the schema parsed résumé payloads must satisfy before a
// candidate's parse concern is marked completed.
type ParsedResume struct {
	Name            string   `json:"name"`
	Email           string   `json:"email,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	Skills          []string `json:"skills"`
	ExperienceYears float64  `json:"experience_years,omitempty"`
	Education       []string `json:"education,omitempty"`
	Languages       []string `json:"languages,omitempty"`
}
