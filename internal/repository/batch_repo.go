package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
)

// BatchRepository handles BatchRecord data operations.
type BatchRepository struct {
	db *gorm.DB
}

// NewBatchRepository creates a new BatchRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *BatchRepository: repository instance bound to db.
func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create inserts a new batch record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - record: batch record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *BatchRepository) Create(ctx context.Context, record *domain.BatchRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// Update saves an existing batch record.
func (r *BatchRepository) Update(ctx context.Context, record *domain.BatchRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

// GetByID retrieves a batch record by its local ID.
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*domain.BatchRecord, error) {
	var record domain.BatchRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// GetByRemoteID retrieves a batch record by the provider-assigned ID.
func (r *BatchRepository) GetByRemoteID(ctx context.Context, remoteID string) (*domain.BatchRecord, error) {
	var record domain.BatchRecord
	if err := r.db.WithContext(ctx).First(&record, "remote_id = ?", remoteID).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ClaimActive claims up to limit non-terminal batch records, oldest first,
// for exclusive processing until the lease expires. Records whose lease has
// not expired are skipped, so two overlapping poller runs cannot claim the
// same record inside a lease window.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records to claim.
//   - lease: how long the claim remains exclusive.
// Returns:
//   - []domain.BatchRecord: claimed records, oldest first.
//   - error: non-nil if the claim transaction fails.
func (r *BatchRepository) ClaimActive(ctx context.Context, limit int, lease time.Duration) ([]domain.BatchRecord, error) {
	now := time.Now()
	until := now.Add(lease)

	var claimed []domain.BatchRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []domain.BatchRecord
		if err := tx.
			Where("status NOT IN ?", terminalBatchStatuses()).
			Where("claimed_until IS NULL OR claimed_until < ?", now).
			Order("created_at ASC, id ASC").
			Limit(limit).
			Find(&candidates).Error; err != nil {
			return err
		}

		for i := range candidates {
			res := tx.Model(&domain.BatchRecord{}).
				Where("id = ?", candidates[i].ID).
				Where("claimed_until IS NULL OR claimed_until < ?", now).
				Update("claimed_until", until)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// Claimed by a concurrent run between select and update.
				continue
			}
			candidates[i].ClaimedUntil = &until
			claimed = append(claimed, candidates[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ReleaseClaim clears the processing lease on a batch record.
func (r *BatchRepository) ReleaseClaim(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.BatchRecord{}).
		Where("id = ?", id).
		Update("claimed_until", nil).Error
}

// ListActive retrieves non-terminal batch records, oldest first.
func (r *BatchRepository) ListActive(ctx context.Context, limit int) ([]domain.BatchRecord, error) {
	var records []domain.BatchRecord
	if err := r.db.WithContext(ctx).
		Where("status NOT IN ?", terminalBatchStatuses()).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// CountByStatus counts batch records by status.
func (r *BatchRepository) CountByStatus(ctx context.Context, status domain.BatchStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.BatchRecord{}).
		Where("status = ?", status).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func terminalBatchStatuses() []domain.BatchStatus {
	return []domain.BatchStatus{
		domain.BatchStatusCompleted,
		domain.BatchStatusFailed,
		domain.BatchStatusCancelled,
		domain.BatchStatusExpired,
	}
}
