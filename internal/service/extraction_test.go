package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
)

type fakeExtractor struct {
	failKeys map[string]bool
}

func (f *fakeExtractor) Extract(_ context.Context, fileKey string) (string, error) {
	if f.failKeys[fileKey] {
		return "", fmt.Errorf("unreadable document %s", fileKey)
	}
	return "text from " + fileKey, nil
}

func TestExtractionRunnerBackfillsText(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	ids := env.seedCandidates(t, 5, "")
	broken, err := env.candidates.GetByID(ctx, ids[2])
	require.NoError(t, err)

	runner := NewExtractionRunner(env.candidates, &fakeExtractor{
		failKeys: map[string]bool{broken.FileKey: true},
	}, 3)

	extracted, err := runner.Run(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, extracted)

	for _, id := range ids {
		c, err := env.candidates.GetByID(ctx, id)
		require.NoError(t, err)
		if id == broken.ID {
			assert.Empty(t, c.ExtractedText)
			assert.Equal(t, domain.ItemStatusPendingBatch, c.ParseStatus)
			continue
		}
		assert.Equal(t, "text from "+c.FileKey, c.ExtractedText)
	}

	// Nothing left to extract on the second run.
	extracted, err = runner.Run(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, extracted)
}
