package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
)

// PredictionRepository handles match prediction data operations.
type PredictionRepository struct {
	db *gorm.DB
}

// NewPredictionRepository creates a new PredictionRepository.
func NewPredictionRepository(db *gorm.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// WithTx returns a repository bound to the given transaction handle.
func (r *PredictionRepository) WithTx(tx *gorm.DB) *PredictionRepository {
	return &PredictionRepository{db: tx}
}

// Create inserts a new prediction record.
func (r *PredictionRepository) Create(ctx context.Context, prediction *domain.Prediction) error {
	return r.db.WithContext(ctx).Create(prediction).Error
}

// GetByID retrieves a prediction by its ID.
func (r *PredictionRepository) GetByID(ctx context.Context, id string) (*domain.Prediction, error) {
	var prediction domain.Prediction
	if err := r.db.WithContext(ctx).First(&prediction, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &prediction, nil
}

// ListPendingExplain retrieves predictions awaiting an explanation, oldest
// first with id tiebreak.
func (r *PredictionRepository) ListPendingExplain(ctx context.Context, limit int) ([]domain.Prediction, error) {
	var predictions []domain.Prediction
	if err := r.db.WithContext(ctx).
		Where("explain_status = ?", domain.ItemStatusPendingBatch).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&predictions).Error; err != nil {
		return nil, err
	}
	return predictions, nil
}

// CountPendingExplain counts predictions awaiting an explanation.
func (r *PredictionRepository) CountPendingExplain(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Prediction{}).
		Where("explain_status = ?", domain.ItemStatusPendingBatch).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// MarkExplainProcessing transitions the explain concern of the given
// predictions from pending_batch to processing.
func (r *PredictionRepository) MarkExplainProcessing(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&domain.Prediction{}).
		Where("id IN ? AND explain_status = ?", ids, domain.ItemStatusPendingBatch).
		Update("explain_status", domain.ItemStatusProcessing).Error
}

// CompleteExplain stores the explanation and marks the concern completed.
// No-op on predictions already terminal, keeping result handling idempotent.
func (r *PredictionRepository) CompleteExplain(ctx context.Context, id, explanation string) error {
	return r.db.WithContext(ctx).Model(&domain.Prediction{}).
		Where("id = ? AND explain_status NOT IN ?", id, terminalItemStatuses()).
		Updates(map[string]interface{}{
			"explain_status": domain.ItemStatusCompleted,
			"explanation":    explanation,
			"explain_error":  "",
		}).Error
}

// FailExplain marks the explain concern failed with a reason.
func (r *PredictionRepository) FailExplain(ctx context.Context, id, reason string) error {
	return r.db.WithContext(ctx).Model(&domain.Prediction{}).
		Where("id = ? AND explain_status NOT IN ?", id, terminalItemStatuses()).
		Updates(map[string]interface{}{
			"explain_status": domain.ItemStatusFailed,
			"explain_error":  reason,
		}).Error
}
