package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
	"github.com/99-NinetyNine/cv-jd-matching/internal/logger"
	"github.com/99-NinetyNine/cv-jd-matching/internal/provider"
	"github.com/99-NinetyNine/cv-jd-matching/internal/repository"
)

// Provider-side metadata keys. The type key routes orphaned remote batches
// back to their handler during reconciliation; the count key is informational.
const (
	metadataTypeKey  = "type"
	metadataCountKey = "count"
)

// Submitter drives one submission cycle for a domain task: size the batch,
// build the requests, upload the artifact, create the remote batch, and
// record it locally with the selected items moved to processing.
type Submitter struct {
	db     *gorm.DB
	client provider.Client
	sizer  *Sizer
}

// NewSubmitter creates a Submitter.
func NewSubmitter(db *gorm.DB, client provider.Client, sizer *Sizer) *Submitter {
	return &Submitter{db: db, client: client, sizer: sizer}
}

// Submit runs one submission for the given task. It returns nil, nil when
// there is nothing to submit, which is the normal idle outcome and not an
// error.
//
// The remote batch is created before the local transaction. If the process
// dies in between, the remote batch survives without a local record and is
// picked up by reconciliation.
func (s *Submitter) Submit(ctx context.Context, task Workload) (*domain.BatchRecord, error) {
	ctx = logger.SetBatchType(ctx, string(task.Type()))
	ctx = logger.SetComponent(ctx, "submitter")
	log := logger.FromContext(ctx)
	start := time.Now()

	pending, err := task.PendingCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending items: %w", err)
	}
	if pending == 0 {
		log.Debug("Nothing to submit")
		return nil, nil
	}

	size := s.sizer.OptimalSize(pending, string(task.Type()))
	if size == 0 {
		log.Debug("Nothing to submit")
		return nil, nil
	}

	requests, ids, err := task.BuildRequests(ctx, size)
	if err != nil {
		return nil, fmt.Errorf("failed to build requests: %w", err)
	}
	if len(requests) == 0 {
		log.WithField(logger.FieldCount, pending).Info("No buildable items, nothing to submit")
		return nil, nil
	}

	fileName := fmt.Sprintf("%s-%s.jsonl", task.Type(), uuid.NewString())
	inputFileID, err := s.client.UploadFile(ctx, fileName, requests)
	if err != nil {
		return nil, fmt.Errorf("failed to upload input artifact: %w", err)
	}

	batch, err := s.client.CreateBatch(ctx, inputFileID, task.Type().Endpoint(), map[string]string{
		metadataTypeKey:  string(task.Type()),
		metadataCountKey: strconv.Itoa(len(requests)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	// The record always starts non-terminal; only the poller applies results
	// and terminal transitions, even when the provider finishes immediately.
	status := batch.Status
	if status == "" || status.Terminal() {
		status = domain.BatchStatusValidating
	}
	record := &domain.BatchRecord{
		ID:          uuid.NewString(),
		RemoteID:    batch.ID,
		Type:        task.Type(),
		Status:      status,
		InputFileID: inputFileID,
		Counts:      batch.Counts,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewBatchRepository(tx).Create(ctx, record); err != nil {
			return fmt.Errorf("failed to create batch record: %w", err)
		}
		if err := task.MarkProcessing(ctx, tx, ids); err != nil {
			return fmt.Errorf("failed to mark items processing: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.With(logger.Fields{
		logger.FieldBatchID:  record.ID,
		logger.FieldRemoteID: record.RemoteID,
	}).WithCount(len(requests)).
		WithDuration(time.Since(start).Milliseconds()).
		Info(ctx, "Submitted batch of %d requests", len(requests))

	return record, nil
}
