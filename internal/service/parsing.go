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

// ParsingTask turns candidates with extracted text into chat completion
// requests and writes validated profiles back.
type ParsingTask struct {
	candidates *repository.CandidateRepository
	model      string
	maxTokens  int
}

// NewParsingTask creates the parsing domain task.
func NewParsingTask(candidates *repository.CandidateRepository, cfg *config.ParsingConfig) *ParsingTask {
	return &ParsingTask{
		candidates: candidates,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
	}
}

func (t *ParsingTask) Type() domain.BatchType {
	return domain.BatchTypeParsing
}

func (t *ParsingTask) PendingCount(ctx context.Context) (int, error) {
	count, err := t.candidates.CountPendingParse(ctx)
	return int(count), err
}

func (t *ParsingTask) BuildRequests(ctx context.Context, limit int) ([]provider.RequestRecord, []string, error) {
	candidates, err := t.candidates.ListPendingParse(ctx, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list pending candidates: %w", err)
	}

	log := logger.FromContext(ctx)
	requests := make([]provider.RequestRecord, 0, len(candidates))
	ids := make([]string, 0, len(candidates))

	for i := range candidates {
		c := &candidates[i]
		if c.ExtractedText == "" {
			// Extraction has not caught up yet; the candidate stays pending.
			log.WithField(logger.FieldItemID, c.ID).Warn("Skipping candidate without extracted text")
			continue
		}

		body, err := json.Marshal(chatCompletionBody{
			Model: t.model,
			Messages: []chatMessage{
				{Role: "system", Content: prompts.ParseSystemPrompt},
				{Role: "user", Content: prompts.ParseUserPromptPrefix + c.ExtractedText},
			},
			MaxTokens:      t.maxTokens,
			ResponseFormat: &responseFormat{Type: "json_object"},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode parse request for %s: %w", c.ID, err)
		}

		requests = append(requests, provider.RequestRecord{
			CustomID: cvParsePrefix + c.ID,
			Method:   "POST",
			URL:      t.Type().Endpoint(),
			Body:     body,
		})
		ids = append(ids, c.ID)
	}

	return requests, ids, nil
}

func (t *ParsingTask) MarkProcessing(ctx context.Context, tx *gorm.DB, ids []string) error {
	return t.candidates.WithTx(tx).MarkParseProcessing(ctx, ids)
}

func (t *ParsingTask) HandleResult(ctx context.Context, tx *gorm.DB, rec provider.ResultRecord) error {
	log := logger.FromContext(ctx).WithField(logger.FieldCustomID, rec.CustomID)

	id, err := parseCustomID(rec.CustomID, cvParsePrefix)
	if err != nil {
		log.WithError(err).Warn("Ignoring result with malformed custom id")
		return nil
	}
	repo := t.candidates.WithTx(tx)

	if !rec.Succeeded() {
		return repo.FailParse(ctx, id, resultFailureReason(&rec))
	}

	profile, err := decodeParsedProfile(rec.Response.Body)
	if err != nil {
		log.WithError(err).Warn("Rejecting unparseable profile payload")
		return repo.FailParse(ctx, id, fmt.Sprintf("invalid parse payload: %v", err))
	}

	return repo.CompleteParse(ctx, id, profile)
}

func (t *ParsingTask) HandleFailure(ctx context.Context, tx *gorm.DB, customID, reason string) error {
	id, err := parseCustomID(customID, cvParsePrefix)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Ignoring failure with malformed custom id")
		return nil
	}
	return t.candidates.WithTx(tx).FailParse(ctx, id, reason)
}

// decodeParsedProfile extracts the model's JSON answer and validates it
// against the profile schema before it is persisted.
func decodeParsedProfile(responseBody json.RawMessage) (domain.JSONMap, error) {
	var result chatCompletionResult
	if err := json.Unmarshal(responseBody, &result); err != nil {
		return nil, fmt.Errorf("malformed completion response: %w", err)
	}
	content, err := firstChoiceContent(&result)
	if err != nil {
		return nil, err
	}

	var resume domain.ParsedResume
	if err := json.Unmarshal([]byte(content), &resume); err != nil {
		return nil, fmt.Errorf("profile does not match schema: %w", err)
	}
	if resume.Name == "" && len(resume.Skills) == 0 {
		return nil, fmt.Errorf("profile has neither name nor skills")
	}

	var profile domain.JSONMap
	if err := json.Unmarshal([]byte(content), &profile); err != nil {
		return nil, fmt.Errorf("profile is not a JSON object: %w", err)
	}
	return profile, nil
}

// resultFailureReason renders a human-readable reason from an error record.
func resultFailureReason(rec *provider.ResultRecord) string {
	if rec.Error != nil {
		if rec.Error.Code != "" {
			return fmt.Sprintf("%s: %s", rec.Error.Code, rec.Error.Message)
		}
		return rec.Error.Message
	}
	if rec.Response != nil {
		return fmt.Sprintf("request failed with status %d", rec.Response.StatusCode)
	}
	return "request failed without response"
}
