package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
)

// JobRepository handles job posting data operations.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// WithTx returns a repository bound to the given transaction handle.
func (r *JobRepository) WithTx(tx *gorm.DB) *JobRepository {
	return &JobRepository{db: tx}
}

// Create inserts a new job record.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ListPendingEmbed retrieves jobs awaiting embedding, oldest first with id
// tiebreak.
func (r *JobRepository) ListPendingEmbed(ctx context.Context, limit int) ([]domain.Job, error) {
	var jobs []domain.Job
	if err := r.db.WithContext(ctx).
		Where("embed_status = ?", domain.ItemStatusPendingBatch).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// CountPendingEmbed counts jobs awaiting embedding.
func (r *JobRepository) CountPendingEmbed(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("embed_status = ?", domain.ItemStatusPendingBatch).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// MarkEmbedProcessing transitions the embed concern of the given jobs from
// pending_batch to processing.
func (r *JobRepository) MarkEmbedProcessing(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id IN ? AND embed_status = ?", ids, domain.ItemStatusPendingBatch).
		Update("embed_status", domain.ItemStatusProcessing).Error
}

// CompleteEmbed marks the embed concern completed and records the model used.
// No-op on jobs already terminal, keeping result handling idempotent.
func (r *JobRepository) CompleteEmbed(ctx context.Context, id, model string) error {
	return r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND embed_status NOT IN ?", id, terminalItemStatuses()).
		Updates(map[string]interface{}{
			"embed_status": domain.ItemStatusCompleted,
			"embed_model":  model,
			"embed_error":  "",
		}).Error
}

// FailEmbed marks the embed concern failed with a reason.
func (r *JobRepository) FailEmbed(ctx context.Context, id, reason string) error {
	return r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND embed_status NOT IN ?", id, terminalItemStatuses()).
		Updates(map[string]interface{}{
			"embed_status": domain.ItemStatusFailed,
			"embed_error":  reason,
		}).Error
}
