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

// CvEmbeddingTask embeds candidate résumés and upserts the vectors into the
// candidate collection.
type CvEmbeddingTask struct {
	candidates *repository.CandidateRepository
	vectors    VectorStore
	model      string
	dimensions int
}

// NewCvEmbeddingTask creates the candidate embedding domain task.
func NewCvEmbeddingTask(candidates *repository.CandidateRepository, vectors VectorStore, cfg *config.EmbeddingConfig) *CvEmbeddingTask {
	return &CvEmbeddingTask{
		candidates: candidates,
		vectors:    vectors,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

func (t *CvEmbeddingTask) Type() domain.BatchType {
	return domain.BatchTypeCvEmbedding
}

func (t *CvEmbeddingTask) PendingCount(ctx context.Context) (int, error) {
	count, err := t.candidates.CountPendingEmbed(ctx)
	return int(count), err
}

func (t *CvEmbeddingTask) BuildRequests(ctx context.Context, limit int) ([]provider.RequestRecord, []string, error) {
	candidates, err := t.candidates.ListPendingEmbed(ctx, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list pending candidates: %w", err)
	}

	log := logger.FromContext(ctx)
	requests := make([]provider.RequestRecord, 0, len(candidates))
	ids := make([]string, 0, len(candidates))

	for i := range candidates {
		c := &candidates[i]
		input := candidateEmbeddingInput(c)
		if input == "" {
			log.WithField(logger.FieldItemID, c.ID).Warn("Skipping candidate without embeddable text")
			continue
		}

		body, err := json.Marshal(embeddingBody{
			Model:      t.model,
			Input:      []string{input},
			Dimensions: t.dimensions,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode embedding request for %s: %w", c.ID, err)
		}

		requests = append(requests, provider.RequestRecord{
			CustomID: cvEmbedPrefix + c.ID,
			Method:   "POST",
			URL:      t.Type().Endpoint(),
			Body:     body,
		})
		ids = append(ids, c.ID)
	}

	return requests, ids, nil
}

func (t *CvEmbeddingTask) MarkProcessing(ctx context.Context, tx *gorm.DB, ids []string) error {
	return t.candidates.WithTx(tx).MarkEmbedProcessing(ctx, ids)
}

func (t *CvEmbeddingTask) HandleResult(ctx context.Context, tx *gorm.DB, rec provider.ResultRecord) error {
	log := logger.FromContext(ctx).WithField(logger.FieldCustomID, rec.CustomID)

	id, err := parseCustomID(rec.CustomID, cvEmbedPrefix)
	if err != nil {
		log.WithError(err).Warn("Ignoring result with malformed custom id")
		return nil
	}
	repo := t.candidates.WithTx(tx)

	if !rec.Succeeded() {
		return repo.FailEmbed(ctx, id, resultFailureReason(&rec))
	}

	vector, err := decodeEmbeddingVector(rec.Response.Body)
	if err != nil {
		log.WithError(err).Warn("Rejecting unparseable embedding payload")
		return repo.FailEmbed(ctx, id, fmt.Sprintf("invalid embedding payload: %v", err))
	}

	// Vector first, then status. If the transaction rolls back afterwards the
	// point is overwritten on the next idempotent re-apply.
	if err := t.vectors.Upsert(ctx, id, vector, &repository.VectorPayload{
		ItemID:   id,
		ItemKind: "candidate",
		Model:    t.model,
	}); err != nil {
		return fmt.Errorf("failed to upsert candidate vector: %w", err)
	}

	return repo.CompleteEmbed(ctx, id, t.model)
}

func (t *CvEmbeddingTask) HandleFailure(ctx context.Context, tx *gorm.DB, customID, reason string) error {
	id, err := parseCustomID(customID, cvEmbedPrefix)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Ignoring failure with malformed custom id")
		return nil
	}
	return t.candidates.WithTx(tx).FailEmbed(ctx, id, reason)
}

// candidateEmbeddingInput prefers the structured profile over raw extracted
// text so vectors stay stable across re-extraction.
func candidateEmbeddingInput(c *domain.Candidate) string {
	if len(c.ParsedProfile) > 0 {
		var parts []string
		if summary, ok := c.ParsedProfile["summary"].(string); ok && summary != "" {
			parts = append(parts, summary)
		}
		if skills, ok := c.ParsedProfile["skills"].([]interface{}); ok {
			for _, s := range skills {
				if skill, ok := s.(string); ok {
					parts = append(parts, skill)
				}
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}
	return strings.TrimSpace(c.ExtractedText)
}

// decodeEmbeddingVector extracts the first embedding from an embeddings
// response body.
func decodeEmbeddingVector(responseBody json.RawMessage) ([]float32, error) {
	var result embeddingResult
	if err := json.Unmarshal(responseBody, &result); err != nil {
		return nil, fmt.Errorf("malformed embeddings response: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("embeddings response has no data")
	}
	vector := result.Data[0].Embedding
	if len(vector) == 0 {
		return nil, fmt.Errorf("embeddings response has empty vector")
	}
	return vector, nil
}
