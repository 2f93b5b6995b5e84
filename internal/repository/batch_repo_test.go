package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
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

	require.NoError(t, db.AutoMigrate(&domain.BatchRecord{}))
	return db
}

func seedRecord(t *testing.T, repo *BatchRepository, status domain.BatchStatus) *domain.BatchRecord {
	t.Helper()
	record := &domain.BatchRecord{
		ID:          uuid.NewString(),
		RemoteID:    "batch-" + uuid.NewString(),
		Type:        domain.BatchTypeParsing,
		Status:      status,
		InputFileID: "file-" + uuid.NewString(),
	}
	require.NoError(t, repo.Create(context.Background(), record))
	return record
}

func TestClaimActiveExcludesTerminalRecords(t *testing.T) {
	ctx := context.Background()
	repo := NewBatchRepository(newTestDB(t))

	seedRecord(t, repo, domain.BatchStatusValidating)
	seedRecord(t, repo, domain.BatchStatusInProgress)
	seedRecord(t, repo, domain.BatchStatusCompleted)
	seedRecord(t, repo, domain.BatchStatusFailed)

	claimed, err := repo.ClaimActive(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)
	for _, record := range claimed {
		assert.NotNil(t, record.ClaimedUntil)
	}
}

func TestClaimActiveIsExclusiveWithinLease(t *testing.T) {
	ctx := context.Background()
	repo := NewBatchRepository(newTestDB(t))

	record := seedRecord(t, repo, domain.BatchStatusInProgress)

	claimed, err := repo.ClaimActive(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// A second overlapping run must not claim the same record.
	claimed, err = repo.ClaimActive(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	require.NoError(t, repo.ReleaseClaim(ctx, record.ID))
	claimed, err = repo.ClaimActive(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

func TestClaimActiveReclaimsAfterLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	repo := NewBatchRepository(newTestDB(t))

	seedRecord(t, repo, domain.BatchStatusInProgress)

	claimed, err := repo.ClaimActive(ctx, 10, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	time.Sleep(5 * time.Millisecond)

	claimed, err = repo.ClaimActive(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

func TestClaimActiveOrdersOldestFirst(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewBatchRepository(db)

	first := seedRecord(t, repo, domain.BatchStatusValidating)
	second := seedRecord(t, repo, domain.BatchStatusValidating)

	// Force distinct creation times; sqlite timestamps can collide in-test.
	require.NoError(t, db.Model(&domain.BatchRecord{}).
		Where("id = ?", first.ID).
		Update("created_at", time.Now().Add(-time.Hour)).Error)

	claimed, err := repo.ClaimActive(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, first.ID, claimed[0].ID)

	claimed, err = repo.ClaimActive(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, second.ID, claimed[0].ID)
}
