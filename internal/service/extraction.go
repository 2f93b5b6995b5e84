package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
	"github.com/99-NinetyNine/cv-jd-matching/internal/logger"
	"github.com/99-NinetyNine/cv-jd-matching/internal/repository"
)

// TextExtractor pulls the raw text out of one uploaded résumé file.
// Implementations live with the upload pipeline; the orchestrator only
// consumes the text.
type TextExtractor interface {
	Extract(ctx context.Context, fileKey string) (string, error)
}

// ExtractionRunner backfills extracted text for candidates that were
// uploaded but not yet extracted, so the parsing workload can pick them up.
type ExtractionRunner struct {
	candidates *repository.CandidateRepository
	extractor  TextExtractor
	workers    int
}

// NewExtractionRunner creates an ExtractionRunner with a bounded worker pool.
func NewExtractionRunner(candidates *repository.CandidateRepository, extractor TextExtractor, workers int) *ExtractionRunner {
	if workers <= 0 {
		workers = 5
	}
	return &ExtractionRunner{
		candidates: candidates,
		extractor:  extractor,
		workers:    workers,
	}
}

// Run extracts text for up to limit candidates. Extraction failures are
// logged and the candidate stays pending for a later retry; they do not
// stop the run.
func (r *ExtractionRunner) Run(ctx context.Context, limit int) (int, error) {
	ctx = logger.SetComponent(ctx, "extractor")
	start := time.Now()

	candidates, err := r.candidates.ListMissingText(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list candidates missing text: %w", err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	work := make(chan *domain.Candidate)
	var wg sync.WaitGroup
	var mu sync.Mutex
	extracted := 0

	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range work {
				if r.extractOne(ctx, c) {
					mu.Lock()
					extracted++
					mu.Unlock()
				}
			}
		}()
	}

	for i := range candidates {
		select {
		case work <- &candidates[i]:
		case <-ctx.Done():
			close(work)
			wg.Wait()
			return extracted, ctx.Err()
		}
	}
	close(work)
	wg.Wait()

	logger.With(logger.Fields{logger.FieldCount: extracted}).
		WithDuration(time.Since(start).Milliseconds()).
		Info(ctx, "Extracted text for %d of %d candidates", extracted, len(candidates))

	return extracted, nil
}

func (r *ExtractionRunner) extractOne(ctx context.Context, c *domain.Candidate) bool {
	log := logger.FromContext(ctx).WithField(logger.FieldItemID, c.ID)

	text, err := r.extractor.Extract(ctx, c.FileKey)
	if err != nil {
		log.WithError(err).Warn("Failed to extract candidate text")
		return false
	}
	if text == "" {
		log.Warn("Extractor returned empty text")
		return false
	}

	c.ExtractedText = text
	if err := r.candidates.Update(ctx, c); err != nil {
		log.WithError(err).Error("Failed to save extracted text")
		return false
	}
	return true
}
