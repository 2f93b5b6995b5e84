package service

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/99-NinetyNine/cv-jd-matching/internal/config"
	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
	"github.com/99-NinetyNine/cv-jd-matching/internal/logger"
	"github.com/99-NinetyNine/cv-jd-matching/internal/prompts"
	"github.com/99-NinetyNine/cv-jd-matching/internal/provider"
	"github.com/99-NinetyNine/cv-jd-matching/internal/repository"
)

// ExplanationTask turns scored candidate/job predictions into chat
// completion requests asking the model to justify the match.
type ExplanationTask struct {
	predictions *repository.PredictionRepository
	candidates  *repository.CandidateRepository
	jobs        *repository.JobRepository
	model       string
	maxTokens   int
}

// NewExplanationTask creates the match explanation domain task.
func NewExplanationTask(
	predictions *repository.PredictionRepository,
	candidates *repository.CandidateRepository,
	jobs *repository.JobRepository,
	cfg *config.ParsingConfig,
) *ExplanationTask {
	return &ExplanationTask{
		predictions: predictions,
		candidates:  candidates,
		jobs:        jobs,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
	}
}

func (t *ExplanationTask) Type() domain.BatchType {
	return domain.BatchTypeExplanation
}

func (t *ExplanationTask) PendingCount(ctx context.Context) (int, error) {
	count, err := t.predictions.CountPendingExplain(ctx)
	return int(count), err
}

func (t *ExplanationTask) BuildRequests(ctx context.Context, limit int) ([]provider.RequestRecord, []string, error) {
	predictions, err := t.predictions.ListPendingExplain(ctx, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list pending predictions: %w", err)
	}

	log := logger.FromContext(ctx)
	requests := make([]provider.RequestRecord, 0, len(predictions))
	ids := make([]string, 0, len(predictions))

	for i := range predictions {
		p := &predictions[i]
		plog := log.WithField(logger.FieldItemID, p.ID)

		candidate, err := t.candidates.GetByID(ctx, p.CandidateID)
		if err != nil {
			plog.WithError(err).Warn("Skipping prediction without loadable candidate")
			continue
		}
		if len(candidate.ParsedProfile) == 0 {
			plog.Warn("Skipping prediction whose candidate has no parsed profile yet")
			continue
		}
		job, err := t.jobs.GetByID(ctx, p.JobID)
		if err != nil {
			plog.WithError(err).Warn("Skipping prediction without loadable job")
			continue
		}

		profileJSON, err := json.Marshal(candidate.ParsedProfile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode profile for %s: %w", p.CandidateID, err)
		}

		body, err := json.Marshal(chatCompletionBody{
			Model: t.model,
			Messages: []chatMessage{
				{Role: "system", Content: prompts.ExplainSystemPrompt},
				{Role: "user", Content: fmt.Sprintf(
					prompts.ExplainUserPromptTemplate,
					string(profileJSON), job.Title, job.Description, p.Score,
				)},
			},
			MaxTokens: t.maxTokens,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode explanation request for %s: %w", p.ID, err)
		}

		requests = append(requests, provider.RequestRecord{
			CustomID: predictionPrefix + p.ID + predictionJobJoin + p.JobID,
			Method:   "POST",
			URL:      t.Type().Endpoint(),
			Body:     body,
		})
		ids = append(ids, p.ID)
	}

	return requests, ids, nil
}

func (t *ExplanationTask) MarkProcessing(ctx context.Context, tx *gorm.DB, ids []string) error {
	return t.predictions.WithTx(tx).MarkExplainProcessing(ctx, ids)
}

func (t *ExplanationTask) HandleResult(ctx context.Context, tx *gorm.DB, rec provider.ResultRecord) error {
	log := logger.FromContext(ctx).WithField(logger.FieldCustomID, rec.CustomID)

	id, err := parsePredictionCustomID(rec.CustomID)
	if err != nil {
		log.WithError(err).Warn("Ignoring result with malformed custom id")
		return nil
	}
	repo := t.predictions.WithTx(tx)

	if !rec.Succeeded() {
		return repo.FailExplain(ctx, id, resultFailureReason(&rec))
	}

	var result chatCompletionResult
	if err := json.Unmarshal(rec.Response.Body, &result); err != nil {
		log.WithError(err).Warn("Rejecting unparseable explanation payload")
		return repo.FailExplain(ctx, id, fmt.Sprintf("invalid explanation payload: %v", err))
	}
	explanation, err := firstChoiceContent(&result)
	if err != nil {
		log.WithError(err).Warn("Rejecting empty explanation payload")
		return repo.FailExplain(ctx, id, fmt.Sprintf("invalid explanation payload: %v", err))
	}

	return repo.CompleteExplain(ctx, id, explanation)
}

func (t *ExplanationTask) HandleFailure(ctx context.Context, tx *gorm.DB, customID, reason string) error {
	id, err := parsePredictionCustomID(customID)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Ignoring failure with malformed custom id")
		return nil
	}
	return t.predictions.WithTx(tx).FailExplain(ctx, id, reason)
}
