package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
	"github.com/99-NinetyNine/cv-jd-matching/internal/logger"
	"github.com/99-NinetyNine/cv-jd-matching/internal/provider"
	"github.com/99-NinetyNine/cv-jd-matching/internal/repository"
	"github.com/99-NinetyNine/cv-jd-matching/internal/storage"
)

// Poller advances tracked batches through the provider-driven state machine.
// Each cycle claims a bounded set of non-terminal records, fetches their
// remote state, and applies results or wholesale failures transactionally.
type Poller struct {
	db       *gorm.DB
	batches  *repository.BatchRepository
	client   provider.Client
	registry *Registry

	// archive is optional; when set, artifacts of terminal batches are
	// copied to object storage for audit.
	archive storage.ObjectStorage

	pollLimit int
	lease     time.Duration
}

// PollStats summarizes one poll cycle.
type PollStats struct {
	Checked   int
	Completed int
	Failed    int
	InFlight  int
	Errors    int
}

// PollerOption customizes a Poller.
type PollerOption func(*Poller)

// WithArchive enables artifact archiving to the given object storage.
func WithArchive(store storage.ObjectStorage) PollerOption {
	return func(p *Poller) { p.archive = store }
}

// NewPoller creates a Poller.
func NewPoller(db *gorm.DB, client provider.Client, registry *Registry, pollLimit int, lease time.Duration, opts ...PollerOption) *Poller {
	if pollLimit <= 0 {
		pollLimit = 50
	}
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	p := &Poller{
		db:        db,
		batches:   repository.NewBatchRepository(db),
		client:    client,
		registry:  registry,
		pollLimit: pollLimit,
		lease:     lease,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PollOnce runs one poll cycle over claimed non-terminal batches. A failure
// on one batch is counted and logged but does not stop the cycle.
func (p *Poller) PollOnce(ctx context.Context) (*PollStats, error) {
	ctx = logger.SetComponent(ctx, "poller")
	ctx = logger.SetCycleID(ctx, uuid.NewString())
	start := time.Now()

	records, err := p.batches.ClaimActive(ctx, p.pollLimit, p.lease)
	if err != nil {
		return nil, fmt.Errorf("failed to claim batches: %w", err)
	}

	stats := &PollStats{}
	for i := range records {
		record := &records[i]
		rctx := logger.WithFields(ctx, logger.Fields{
			logger.FieldBatchID:   record.ID,
			logger.FieldRemoteID:  record.RemoteID,
			logger.FieldBatchType: string(record.Type),
		})
		stats.Checked++

		if err := p.pollRecord(rctx, record, stats); err != nil {
			stats.Errors++
			logger.FromContext(rctx).WithError(err).Error("Failed to poll batch")
			if relErr := p.batches.ReleaseClaim(ctx, record.ID); relErr != nil {
				logger.FromContext(rctx).WithError(relErr).Error("Failed to release claim")
			}
		}
	}

	logger.With(logger.Fields{
		"checked":   stats.Checked,
		"completed": stats.Completed,
		"failed":    stats.Failed,
		"in_flight": stats.InFlight,
		"errors":    stats.Errors,
	}).WithDuration(time.Since(start).Milliseconds()).
		Info(ctx, "Poll cycle finished")

	return stats, nil
}

func (p *Poller) pollRecord(ctx context.Context, record *domain.BatchRecord, stats *PollStats) error {
	remote, err := p.client.RetrieveBatch(ctx, record.RemoteID)
	if err != nil {
		// Transport failure: the record is left untouched for the next cycle.
		return fmt.Errorf("failed to retrieve batch: %w", err)
	}
	return p.applyRemote(ctx, record, remote, stats)
}

// applyRemote reconciles one local record with its remote state.
func (p *Poller) applyRemote(ctx context.Context, record *domain.BatchRecord, remote *provider.Batch, stats *PollStats) error {
	task, err := p.registry.Task(record.Type)
	if err != nil {
		return err
	}

	switch {
	case remote.Status == domain.BatchStatusCompleted:
		if err := p.applyCompleted(ctx, record, remote, task); err != nil {
			return err
		}
		stats.Completed++
	case remote.Status.Terminal():
		if err := p.applyWholesaleFailure(ctx, record, remote, task); err != nil {
			return err
		}
		stats.Failed++
	default:
		record.Status = remote.Status
		record.Counts = remote.Counts
		record.ClaimedUntil = nil
		if err := p.batches.Update(ctx, record); err != nil {
			return fmt.Errorf("failed to update batch record: %w", err)
		}
		stats.InFlight++
	}
	return nil
}

// applyCompleted downloads the output and error artifacts and applies every
// result inside one transaction together with the record's terminal update.
// Requests present in the input but missing from both artifacts are a
// provider protocol violation; they are logged and their items stay in
// processing.
func (p *Poller) applyCompleted(ctx context.Context, record *domain.BatchRecord, remote *provider.Batch, task ResultHandler) error {
	log := logger.FromContext(ctx)

	var results []provider.ResultRecord
	if remote.OutputFileID != "" {
		out, err := p.client.RetrieveResults(ctx, remote.OutputFileID)
		if err != nil {
			return fmt.Errorf("failed to retrieve output artifact: %w", err)
		}
		results = append(results, out...)
	}
	if remote.ErrorFileID != "" {
		errs, err := p.client.RetrieveResults(ctx, remote.ErrorFileID)
		if err != nil {
			return fmt.Errorf("failed to retrieve error artifact: %w", err)
		}
		results = append(results, errs...)
	}

	inputs, err := p.client.RetrieveInput(ctx, record.InputFileID)
	if err != nil {
		return fmt.Errorf("failed to retrieve input artifact: %w", err)
	}

	seen := make(map[string]bool, len(results))
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range results {
			rec := results[i]
			if seen[rec.CustomID] {
				log.WithField(logger.FieldCustomID, rec.CustomID).Warn("Duplicate result record, skipping")
				continue
			}
			seen[rec.CustomID] = true
			if err := task.HandleResult(ctx, tx, rec); err != nil {
				return fmt.Errorf("failed to handle result %q: %w", rec.CustomID, err)
			}
		}

		now := time.Now()
		record.Status = domain.BatchStatusCompleted
		record.OutputFileID = remote.OutputFileID
		record.ErrorFileID = remote.ErrorFileID
		record.Counts = remote.Counts
		record.CompletedAt = &now
		record.ClaimedUntil = nil
		return repository.NewBatchRepository(tx).Update(ctx, record)
	})
	if err != nil {
		return err
	}

	missing := 0
	for i := range inputs {
		if !seen[inputs[i].CustomID] {
			missing++
			log.WithField(logger.FieldCustomID, inputs[i].CustomID).
				Warn("Request missing from both output and error artifacts")
		}
	}
	if missing > 0 {
		logger.With(logger.Fields{logger.FieldCount: missing}).
			Warn(ctx, "Batch completed with %d unaccounted requests", missing)
	}

	p.archiveArtifacts(ctx, record, inputs, results)
	return nil
}

// applyWholesaleFailure fails every item referenced by the input artifact of
// a batch that ended failed, expired, or cancelled.
func (p *Poller) applyWholesaleFailure(ctx context.Context, record *domain.BatchRecord, remote *provider.Batch, task ResultHandler) error {
	inputs, err := p.client.RetrieveInput(ctx, record.InputFileID)
	if err != nil {
		return fmt.Errorf("failed to retrieve input artifact: %w", err)
	}

	reason := fmt.Sprintf("batch %s", remote.Status)
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range inputs {
			if err := task.HandleFailure(ctx, tx, inputs[i].CustomID, reason); err != nil {
				return fmt.Errorf("failed to fail item %q: %w", inputs[i].CustomID, err)
			}
		}

		now := time.Now()
		record.Status = remote.Status
		record.ErrorFileID = remote.ErrorFileID
		record.Counts = remote.Counts
		record.CompletedAt = &now
		record.ClaimedUntil = nil
		return repository.NewBatchRepository(tx).Update(ctx, record)
	})
	if err != nil {
		return err
	}

	logger.With(logger.Fields{logger.FieldCount: len(inputs)}).
		WithStatus(string(remote.Status)).
		Warn(ctx, "Batch ended %s, failed %d items", remote.Status, len(inputs))

	p.archiveArtifacts(ctx, record, inputs, nil)
	return nil
}

// archiveArtifacts copies the batch artifacts to object storage. Archiving
// is best effort; a failure is logged and never blocks state transitions.
func (p *Poller) archiveArtifacts(ctx context.Context, record *domain.BatchRecord, inputs []provider.RequestRecord, results []provider.ResultRecord) {
	if p.archive == nil {
		return
	}
	log := logger.FromContext(ctx)

	if len(inputs) > 0 {
		if data, err := provider.EncodeRequests(inputs); err != nil {
			log.WithError(err).Warn("Failed to encode input artifact for archive")
		} else {
			p.archiveObject(ctx, record.ID, "input.jsonl", data)
		}
	}
	if len(results) > 0 {
		if data, err := provider.EncodeResults(results); err != nil {
			log.WithError(err).Warn("Failed to encode result artifact for archive")
		} else {
			p.archiveObject(ctx, record.ID, "results.jsonl", data)
		}
	}
}

func (p *Poller) archiveObject(ctx context.Context, batchID, name string, data []byte) {
	key := fmt.Sprintf("batches/%s/%s", batchID, name)
	err := p.archive.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "application/x-ndjson")
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithField("key", key).Warn("Failed to archive artifact")
	}
}

// Reconcile compares recent provider-side batches against local records and
// adopts orphans: remote batches carrying our type metadata that have no
// local record, typically left behind by a crash between batch creation and
// the local transaction. Adopted terminal batches are processed immediately.
func (p *Poller) Reconcile(ctx context.Context, limit int) (int, error) {
	ctx = logger.SetComponent(ctx, "reconciler")
	log := logger.FromContext(ctx)

	remotes, err := p.client.ListBatches(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list remote batches: %w", err)
	}

	adopted := 0
	for _, remote := range remotes {
		_, err := p.batches.GetByRemoteID(ctx, remote.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return adopted, fmt.Errorf("failed to look up batch %s: %w", remote.ID, err)
		}

		rawType, ok := remote.Metadata[metadataTypeKey]
		if !ok {
			// Not ours; other tenants share the provider account.
			continue
		}
		batchType, err := domain.ParseBatchType(rawType)
		if err != nil {
			log.WithField(logger.FieldRemoteID, remote.ID).WithError(err).
				Warn("Skipping orphan batch with unknown type")
			continue
		}

		record := &domain.BatchRecord{
			ID:          uuid.NewString(),
			RemoteID:    remote.ID,
			Type:        batchType,
			Status:      domain.BatchStatusValidating,
			InputFileID: remote.InputFileID,
			Counts:      remote.Counts,
		}
		if err := p.batches.Create(ctx, record); err != nil {
			return adopted, fmt.Errorf("failed to adopt batch %s: %w", remote.ID, err)
		}
		adopted++

		rctx := logger.WithFields(ctx, logger.Fields{
			logger.FieldBatchID:   record.ID,
			logger.FieldRemoteID:  record.RemoteID,
			logger.FieldBatchType: string(record.Type),
		})
		logger.FromContext(rctx).Warn("Adopted orphan remote batch")

		if err := p.applyRemote(rctx, record, remote, &PollStats{}); err != nil {
			logger.FromContext(rctx).WithError(err).Error("Failed to apply adopted batch")
		}
	}
	return adopted, nil
}

// Cancel requests cancellation of a non-terminal batch and applies the
// resulting remote state.
func (p *Poller) Cancel(ctx context.Context, batchID string) (*domain.BatchRecord, error) {
	record, err := p.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch record: %w", err)
	}
	if record.Status.Terminal() {
		return nil, fmt.Errorf("batch %s is already %s", batchID, record.Status)
	}

	if err := p.client.CancelBatch(ctx, record.RemoteID); err != nil {
		return nil, fmt.Errorf("failed to cancel batch: %w", err)
	}

	remote, err := p.client.RetrieveBatch(ctx, record.RemoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve batch after cancel: %w", err)
	}

	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldBatchID:   record.ID,
		logger.FieldRemoteID:  record.RemoteID,
		logger.FieldBatchType: string(record.Type),
	})
	if err := p.applyRemote(ctx, record, remote, &PollStats{}); err != nil {
		return nil, err
	}
	return record, nil
}
