package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/99-NinetyNine/cv-jd-matching/internal/config"
	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
	"github.com/99-NinetyNine/cv-jd-matching/internal/provider"
	"github.com/99-NinetyNine/cv-jd-matching/internal/provider/simulator"
	"github.com/99-NinetyNine/cv-jd-matching/internal/repository"
)

type fakeVectorStore struct {
	mu     sync.Mutex
	points map[string][]float32
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{points: make(map[string][]float32)}
}

func (f *fakeVectorStore) Upsert(_ context.Context, pointID string, vector []float32, _ *repository.VectorPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[pointID] = vector
	return nil
}

func (f *fakeVectorStore) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

// testEnv wires a fully simulated orchestrator against an in-memory database.
type testEnv struct {
	db          *gorm.DB
	sim         *simulator.Simulator
	registry    *Registry
	submitter   *Submitter
	poller      *Poller
	batches     *repository.BatchRepository
	candidates  *repository.CandidateRepository
	jobs        *repository.JobRepository
	predictions *repository.PredictionRepository
	cvVectors   *fakeVectorStore
	jobVectors  *fakeVectorStore

	parsing     *ParsingTask
	cvEmbed     *CvEmbeddingTask
	jobEmbed    *JobEmbeddingTask
	explanation *ExplanationTask
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:test_%s?mode=memory&cache=shared",
		strings.ReplaceAll(uuid.NewString(), "-", ""))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&domain.BatchRecord{},
		&domain.Candidate{},
		&domain.Job{},
		&domain.Prediction{},
	))

	env := &testEnv{
		db:          db,
		sim:         simulator.New(),
		batches:     repository.NewBatchRepository(db),
		candidates:  repository.NewCandidateRepository(db),
		jobs:        repository.NewJobRepository(db),
		predictions: repository.NewPredictionRepository(db),
		cvVectors:   newFakeVectorStore(),
		jobVectors:  newFakeVectorStore(),
	}

	embedCfg := &config.EmbeddingConfig{Model: "text-embedding-3-small", Dimensions: 1536}
	parseCfg := &config.ParsingConfig{Model: "gpt-4o-mini", MaxTokens: 2048}

	env.parsing = NewParsingTask(env.candidates, parseCfg)
	env.cvEmbed = NewCvEmbeddingTask(env.candidates, env.cvVectors, embedCfg)
	env.jobEmbed = NewJobEmbeddingTask(env.jobs, env.jobVectors, embedCfg)
	env.explanation = NewExplanationTask(env.predictions, env.candidates, env.jobs, parseCfg)

	registry, err := NewRegistry(env.parsing, env.cvEmbed, env.jobEmbed, env.explanation)
	require.NoError(t, err)
	env.registry = registry

	// Large default plus fixed neutral factors so every pending item fits in
	// one batch.
	sizer := &Sizer{
		DefaultSize: 500,
		Probe:       fakeProbe{cpu: 0.5, mem: 0.5},
		Now:         fixedHour(12),
	}
	env.submitter = NewSubmitter(db, env.sim, sizer)
	env.poller = NewPoller(db, env.sim, registry, 50, 0)

	return env
}

func (e *testEnv) seedCandidates(t *testing.T, n int, text string) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		c := &domain.Candidate{
			ID:            uuid.NewString(),
			FileKey:       fmt.Sprintf("resumes/%d.pdf", i),
			ExtractedText: text,
		}
		require.NoError(t, e.candidates.Create(context.Background(), c))
		ids = append(ids, c.ID)
	}
	return ids
}

func (e *testEnv) seedJobs(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		j := &domain.Job{
			ID:          uuid.NewString(),
			Title:       fmt.Sprintf("Backend Engineer %d", i),
			Description: "Build and operate Go services.",
		}
		require.NoError(t, e.jobs.Create(context.Background(), j))
		ids = append(ids, j.ID)
	}
	return ids
}

func TestCvEmbeddingEndToEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.sim.FailureRate = 0.05

	env.seedCandidates(t, 120, "Seasoned Go engineer with Postgres experience.")

	record, err := env.submitter.Submit(ctx, env.cvEmbed)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, domain.BatchTypeCvEmbedding, record.Type)
	assert.Equal(t, 120, record.Counts.Total)
	assert.False(t, record.Status.Terminal())

	var processing int64
	require.NoError(t, env.db.Model(&domain.Candidate{}).
		Where("embed_status = ?", domain.ItemStatusProcessing).Count(&processing).Error)
	assert.EqualValues(t, 120, processing)

	stats, err := env.poller.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Checked)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 0, stats.Errors)

	got, err := env.batches.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.ClaimedUntil)
	assert.Equal(t, 120, got.Counts.Total)
	assert.Equal(t, 114, got.Counts.Completed)
	assert.Equal(t, 6, got.Counts.Failed)

	var completed, failed int64
	require.NoError(t, env.db.Model(&domain.Candidate{}).
		Where("embed_status = ?", domain.ItemStatusCompleted).Count(&completed).Error)
	require.NoError(t, env.db.Model(&domain.Candidate{}).
		Where("embed_status = ?", domain.ItemStatusFailed).Count(&failed).Error)
	assert.EqualValues(t, 114, completed)
	assert.EqualValues(t, 6, failed)

	var failedOne domain.Candidate
	require.NoError(t, env.db.
		Where("embed_status = ?", domain.ItemStatusFailed).First(&failedOne).Error)
	assert.Contains(t, failedOne.EmbedError, "simulated_failure")

	assert.Equal(t, 114, env.cvVectors.len())
	for _, vector := range env.cvVectors.points {
		assert.Len(t, vector, 1536)
	}

	// Terminal records are not claimed again.
	stats, err = env.poller.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Checked)
}

func TestParsingSkipsCandidatesWithoutText(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	withText := env.seedCandidates(t, 20, "Ten years of distributed systems work.")
	withoutText := env.seedCandidates(t, 1, "")

	record, err := env.submitter.Submit(ctx, env.parsing)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 20, record.Counts.Total)

	_, err = env.poller.PollOnce(ctx)
	require.NoError(t, err)

	for _, id := range withText {
		c, err := env.candidates.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.ItemStatusCompleted, c.ParseStatus)
		assert.Equal(t, "Simulated Candidate", c.ParsedProfile["name"])
	}

	c, err := env.candidates.GetByID(ctx, withoutText[0])
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusPendingBatch, c.ParseStatus)
}

func TestMalformedPayloadFailsItemOnly(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	ids := env.seedCandidates(t, 12, "Solid platform engineering background.")
	badID := ids[3]

	goodContent := `{"name":"Jane Doe","skills":["go"],"experience_years":3}`
	env.sim.SetResponder("/v1/chat/completions", func(req provider.RequestRecord) (json.RawMessage, error) {
		content := goodContent
		if req.CustomID == "cv-parse-"+badID {
			content = "this is not a JSON document"
		}
		body := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		return json.Marshal(body)
	})

	record, err := env.submitter.Submit(ctx, env.parsing)
	require.NoError(t, err)
	require.NotNil(t, record)

	stats, err := env.poller.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 0, stats.Errors)

	bad, err := env.candidates.GetByID(ctx, badID)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusFailed, bad.ParseStatus)
	assert.Contains(t, bad.ParseError, "invalid parse payload")

	var completed int64
	require.NoError(t, env.db.Model(&domain.Candidate{}).
		Where("parse_status = ?", domain.ItemStatusCompleted).Count(&completed).Error)
	assert.EqualValues(t, 11, completed)
}

func TestBatchExpiryFailsAllItems(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.sim.ForceStatus = domain.BatchStatusInProgress

	ids := env.seedJobs(t, 10)

	record, err := env.submitter.Submit(ctx, env.jobEmbed)
	require.NoError(t, err)
	require.NotNil(t, record)

	// First poll observes the batch still running.
	stats, err := env.poller.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.InFlight)

	require.NoError(t, env.sim.SetStatus(record.RemoteID, domain.BatchStatusExpired))

	stats, err = env.poller.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	got, err := env.batches.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusExpired, got.Status)
	require.NotNil(t, got.CompletedAt)

	for _, id := range ids {
		j, err := env.jobs.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.ItemStatusFailed, j.EmbedStatus)
		assert.Equal(t, "batch expired", j.EmbedError)
	}
}

func TestCancelFailsInFlightItems(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.sim.ForceStatus = domain.BatchStatusInProgress

	candidateID := env.seedCandidates(t, 1, "Data engineer.")[0]
	require.NoError(t, env.db.Model(&domain.Candidate{}).
		Where("id = ?", candidateID).
		Update("parsed_profile", domain.JSONMap{
			"summary": "Data engineer",
			"skills":  []interface{}{"python", "sql"},
		}).Error)
	jobID := env.seedJobs(t, 1)[0]

	predIDs := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		p := &domain.Prediction{
			ID:          uuid.NewString(),
			CandidateID: candidateID,
			JobID:       jobID,
			Score:       0.8,
		}
		require.NoError(t, env.predictions.Create(ctx, p))
		predIDs = append(predIDs, p.ID)
	}

	record, err := env.submitter.Submit(ctx, env.explanation)
	require.NoError(t, err)
	require.NotNil(t, record)

	cancelled, err := env.poller.Cancel(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CompletedAt)

	for _, id := range predIDs {
		p, err := env.predictions.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.ItemStatusFailed, p.ExplainStatus)
		assert.Equal(t, "batch cancelled", p.ExplainError)
	}

	// Cancelling a terminal batch is rejected.
	_, err = env.poller.Cancel(ctx, record.ID)
	assert.Error(t, err)
}

func TestDroppedResultLeavesItemProcessing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.sim.DropEveryNth = 5

	env.seedCandidates(t, 10, "Frontend engineer moving to platform work.")

	record, err := env.submitter.Submit(ctx, env.cvEmbed)
	require.NoError(t, err)
	require.NotNil(t, record)

	stats, err := env.poller.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)

	got, err := env.batches.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, got.Status)

	var completed, processing int64
	require.NoError(t, env.db.Model(&domain.Candidate{}).
		Where("embed_status = ?", domain.ItemStatusCompleted).Count(&completed).Error)
	require.NoError(t, env.db.Model(&domain.Candidate{}).
		Where("embed_status = ?", domain.ItemStatusProcessing).Count(&processing).Error)
	assert.EqualValues(t, 8, completed)
	assert.EqualValues(t, 2, processing)
}

func TestReconcileAdoptsOrphanBatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.seedCandidates(t, 10, "SRE with strong incident response record.")

	// Simulate a crash after batch creation: the remote batch exists, the
	// local record does not, and the items were never marked processing.
	requests, _, err := env.cvEmbed.BuildRequests(ctx, 10)
	require.NoError(t, err)
	fileID, err := env.sim.UploadFile(ctx, "orphan.jsonl", requests)
	require.NoError(t, err)
	remote, err := env.sim.CreateBatch(ctx, fileID, "/v1/embeddings", map[string]string{
		"type": string(domain.BatchTypeCvEmbedding),
	})
	require.NoError(t, err)

	adopted, err := env.poller.Reconcile(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, adopted)

	record, err := env.batches.GetByRemoteID(ctx, remote.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchTypeCvEmbedding, record.Type)
	assert.Equal(t, domain.BatchStatusCompleted, record.Status)

	var completed int64
	require.NoError(t, env.db.Model(&domain.Candidate{}).
		Where("embed_status = ?", domain.ItemStatusCompleted).Count(&completed).Error)
	assert.EqualValues(t, 10, completed)

	// A second pass adopts nothing.
	adopted, err = env.poller.Reconcile(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, adopted)
}

func TestSubmitWithNothingPending(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	record, err := env.submitter.Submit(ctx, env.jobEmbed)
	require.NoError(t, err)
	assert.Nil(t, record)

	var count int64
	require.NoError(t, env.db.Model(&domain.BatchRecord{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTerminalItemWritesAreIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.seedCandidates(t, 10, "Kernel developer exploring userspace.")

	_, err := env.submitter.Submit(ctx, env.cvEmbed)
	require.NoError(t, err)
	_, err = env.poller.PollOnce(ctx)
	require.NoError(t, err)

	var done domain.Candidate
	require.NoError(t, env.db.
		Where("embed_status = ?", domain.ItemStatusCompleted).First(&done).Error)

	// A late failure for an already completed item must not flip it.
	require.NoError(t, env.cvEmbed.HandleFailure(ctx, env.db, "cv-"+done.ID, "late duplicate"))

	got, err := env.candidates.GetByID(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusCompleted, got.EmbedStatus)
	assert.Empty(t, got.EmbedError)
}

func TestRegistryRequiresEveryBatchType(t *testing.T) {
	env := newTestEnv(t)

	_, err := NewRegistry(env.parsing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no task registered")

	_, err = NewRegistry(env.parsing, env.parsing, env.cvEmbed, env.jobEmbed, env.explanation)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate task")
}
