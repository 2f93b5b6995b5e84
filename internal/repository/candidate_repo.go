package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
)

// CandidateRepository handles candidate data operations.
type CandidateRepository struct {
	db *gorm.DB
}

// NewCandidateRepository creates a new CandidateRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *CandidateRepository: repository instance bound to db.
func NewCandidateRepository(db *gorm.DB) *CandidateRepository {
	return &CandidateRepository{db: db}
}

// WithTx returns a repository bound to the given transaction handle.
func (r *CandidateRepository) WithTx(tx *gorm.DB) *CandidateRepository {
	return &CandidateRepository{db: tx}
}

// Create inserts a new candidate record.
func (r *CandidateRepository) Create(ctx context.Context, candidate *domain.Candidate) error {
	return r.db.WithContext(ctx).Create(candidate).Error
}

// Update saves an existing candidate record.
func (r *CandidateRepository) Update(ctx context.Context, candidate *domain.Candidate) error {
	return r.db.WithContext(ctx).Save(candidate).Error
}

// GetByID retrieves a candidate by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: candidate ID.
// Returns:
//   - *domain.Candidate: candidate record if found.
//   - error: non-nil if lookup fails.
func (r *CandidateRepository) GetByID(ctx context.Context, id string) (*domain.Candidate, error) {
	var candidate domain.Candidate
	if err := r.db.WithContext(ctx).First(&candidate, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &candidate, nil
}

// ListPendingParse retrieves candidates awaiting parsing, oldest first with
// id tiebreak so selection order is stable.
func (r *CandidateRepository) ListPendingParse(ctx context.Context, limit int) ([]domain.Candidate, error) {
	var candidates []domain.Candidate
	if err := r.db.WithContext(ctx).
		Where("parse_status = ?", domain.ItemStatusPendingBatch).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

// CountPendingParse counts candidates awaiting parsing.
func (r *CandidateRepository) CountPendingParse(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Candidate{}).
		Where("parse_status = ?", domain.ItemStatusPendingBatch).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListPendingEmbed retrieves candidates awaiting embedding, oldest first.
func (r *CandidateRepository) ListPendingEmbed(ctx context.Context, limit int) ([]domain.Candidate, error) {
	var candidates []domain.Candidate
	if err := r.db.WithContext(ctx).
		Where("embed_status = ?", domain.ItemStatusPendingBatch).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

// CountPendingEmbed counts candidates awaiting embedding.
func (r *CandidateRepository) CountPendingEmbed(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Candidate{}).
		Where("embed_status = ?", domain.ItemStatusPendingBatch).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// MarkParseProcessing transitions the parse concern of the given candidates
// from pending_batch to processing.
func (r *CandidateRepository) MarkParseProcessing(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&domain.Candidate{}).
		Where("id IN ? AND parse_status = ?", ids, domain.ItemStatusPendingBatch).
		Update("parse_status", domain.ItemStatusProcessing).Error
}

// MarkEmbedProcessing transitions the embed concern of the given candidates
// from pending_batch to processing.
func (r *CandidateRepository) MarkEmbedProcessing(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&domain.Candidate{}).
		Where("id IN ? AND embed_status = ?", ids, domain.ItemStatusPendingBatch).
		Update("embed_status", domain.ItemStatusProcessing).Error
}

// CompleteParse writes the parsed profile and marks the parse concern
// completed. The write is a no-op if the concern already reached a terminal
// status, keeping result handling idempotent.
func (r *CandidateRepository) CompleteParse(ctx context.Context, id string, profile domain.JSONMap) error {
	return r.db.WithContext(ctx).Model(&domain.Candidate{}).
		Where("id = ? AND parse_status NOT IN ?", id, terminalItemStatuses()).
		Updates(map[string]interface{}{
			"parse_status":   domain.ItemStatusCompleted,
			"parsed_profile": profile,
			"parse_error":    "",
		}).Error
}

// FailParse marks the parse concern failed with a reason. No-op on items
// already terminal.
func (r *CandidateRepository) FailParse(ctx context.Context, id, reason string) error {
	return r.db.WithContext(ctx).Model(&domain.Candidate{}).
		Where("id = ? AND parse_status NOT IN ?", id, terminalItemStatuses()).
		Updates(map[string]interface{}{
			"parse_status": domain.ItemStatusFailed,
			"parse_error":  reason,
		}).Error
}

// CompleteEmbed marks the embed concern completed and records the model used.
func (r *CandidateRepository) CompleteEmbed(ctx context.Context, id, model string) error {
	return r.db.WithContext(ctx).Model(&domain.Candidate{}).
		Where("id = ? AND embed_status NOT IN ?", id, terminalItemStatuses()).
		Updates(map[string]interface{}{
			"embed_status": domain.ItemStatusCompleted,
			"embed_model":  model,
			"embed_error":  "",
		}).Error
}

// FailEmbed marks the embed concern failed with a reason.
func (r *CandidateRepository) FailEmbed(ctx context.Context, id, reason string) error {
	return r.db.WithContext(ctx).Model(&domain.Candidate{}).
		Where("id = ? AND embed_status NOT IN ?", id, terminalItemStatuses()).
		Updates(map[string]interface{}{
			"embed_status": domain.ItemStatusFailed,
			"embed_error":  reason,
		}).Error
}

// ListMissingText retrieves candidates awaiting parsing that have no
// extracted text yet, oldest first.
func (r *CandidateRepository) ListMissingText(ctx context.Context, limit int) ([]domain.Candidate, error) {
	var candidates []domain.Candidate
	if err := r.db.WithContext(ctx).
		Where("parse_status = ? AND (extracted_text IS NULL OR extracted_text = '')", domain.ItemStatusPendingBatch).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

func terminalItemStatuses() []domain.ItemStatus {
	return []domain.ItemStatus{domain.ItemStatusCompleted, domain.ItemStatusFailed}
}
