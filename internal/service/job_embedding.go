package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/99-NinetyNine/cv-jd-matching/internal/config"
	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
	"github.com/99-NinetyNine/cv-jd-matching/internal/logger"
	"github.com/99-NinetyNine/cv-jd-matching/internal/provider"
	"github.com/99-NinetyNine/cv-jd-matching/internal/repository"
)

// JobEmbeddingTask embeds job postings and upserts the vectors into the job
// collection.
type JobEmbeddingTask struct {
	jobs       *repository.JobRepository
	vectors    VectorStore
	model      string
	dimensions int
}

// NewJobEmbeddingTask creates the job embedding domain task.
func NewJobEmbeddingTask(jobs *repository.JobRepository, vectors VectorStore, cfg *config.EmbeddingConfig) *JobEmbeddingTask {
	return &JobEmbeddingTask{
		jobs:       jobs,
		vectors:    vectors,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

func (t *JobEmbeddingTask) Type() domain.BatchType {
	return domain.BatchTypeJobEmbedding
}

func (t *JobEmbeddingTask) PendingCount(ctx context.Context) (int, error) {
	count, err := t.jobs.CountPendingEmbed(ctx)
	return int(count), err
}

func (t *JobEmbeddingTask) BuildRequests(ctx context.Context, limit int) ([]provider.RequestRecord, []string, error) {
	jobs, err := t.jobs.ListPendingEmbed(ctx, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}

	log := logger.FromContext(ctx)
	requests := make([]provider.RequestRecord, 0, len(jobs))
	ids := make([]string, 0, len(jobs))

	for i := range jobs {
		j := &jobs[i]
		input := jobEmbeddingInput(j)
		if input == "" {
			log.WithField(logger.FieldItemID, j.ID).Warn("Skipping job without embeddable text")
			continue
		}

		body, err := json.Marshal(embeddingBody{
			Model:      t.model,
			Input:      []string{input},
			Dimensions: t.dimensions,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode embedding request for %s: %w", j.ID, err)
		}

		requests = append(requests, provider.RequestRecord{
			CustomID: jobEmbedPrefix + j.ID,
			Method:   "POST",
			URL:      t.Type().Endpoint(),
			Body:     body,
		})
		ids = append(ids, j.ID)
	}

	return requests, ids, nil
}

func (t *JobEmbeddingTask) MarkProcessing(ctx context.Context, tx *gorm.DB, ids []string) error {
	return t.jobs.WithTx(tx).MarkEmbedProcessing(ctx, ids)
}

func (t *JobEmbeddingTask) HandleResult(ctx context.Context, tx *gorm.DB, rec provider.ResultRecord) error {
	log := logger.FromContext(ctx).WithField(logger.FieldCustomID, rec.CustomID)

	id, err := parseCustomID(rec.CustomID, jobEmbedPrefix)
	if err != nil {
		log.WithError(err).Warn("Ignoring result with malformed custom id")
		return nil
	}
	repo := t.jobs.WithTx(tx)

	if !rec.Succeeded() {
		return repo.FailEmbed(ctx, id, resultFailureReason(&rec))
	}

	vector, err := decodeEmbeddingVector(rec.Response.Body)
	if err != nil {
		log.WithError(err).Warn("Rejecting unparseable embedding payload")
		return repo.FailEmbed(ctx, id, fmt.Sprintf("invalid embedding payload: %v", err))
	}

	if err := t.vectors.Upsert(ctx, id, vector, &repository.VectorPayload{
		ItemID:   id,
		ItemKind: "job",
		Model:    t.model,
	}); err != nil {
		return fmt.Errorf("failed to upsert job vector: %w", err)
	}

	return repo.CompleteEmbed(ctx, id, t.model)
}

func (t *JobEmbeddingTask) HandleFailure(ctx context.Context, tx *gorm.DB, customID, reason string) error {
	id, err := parseCustomID(customID, jobEmbedPrefix)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Ignoring failure with malformed custom id")
		return nil
	}
	return t.jobs.WithTx(tx).FailEmbed(ctx, id, reason)
}

func jobEmbeddingInput(j *domain.Job) string {
	parts := make([]string, 0, 2)
	if j.Title != "" {
		parts = append(parts, j.Title)
	}
	if j.Description != "" {
		parts = append(parts, j.Description)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
