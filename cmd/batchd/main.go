// batchd is the batch orchestration daemon: it sizes and submits bulk
// inference batches for résumé parsing, embedding, and match explanation,
// and polls the provider to apply their results.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/99-NinetyNine/cv-jd-matching/internal/config"
	"github.com/99-NinetyNine/cv-jd-matching/internal/logger"
	"github.com/99-NinetyNine/cv-jd-matching/internal/provider"
	"github.com/99-NinetyNine/cv-jd-matching/internal/provider/openai"
	"github.com/99-NinetyNine/cv-jd-matching/internal/provider/simulator"
	"github.com/99-NinetyNine/cv-jd-matching/internal/repository"
	"github.com/99-NinetyNine/cv-jd-matching/internal/service"
	"github.com/99-NinetyNine/cv-jd-matching/internal/storage"
)

var (
	cfgFile  string
	simulate bool

	rootCmd = &cobra.Command{
		Use:   "batchd",
		Short: "batchd orchestrates bulk inference batches for CV/JD matching",
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "use the in-memory provider simulator instead of the real API")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the wired orchestrator components shared by all subcommands.
type app struct {
	cfg       *config.Config
	db        *gorm.DB
	client    provider.Client
	registry  *service.Registry
	submitter *service.Submitter
	poller    *service.Poller

	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	log := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(log)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &app{cfg: cfg, db: db}

	candidates := repository.NewCandidateRepository(db)
	jobs := repository.NewJobRepository(db)
	predictions := repository.NewPredictionRepository(db)

	var cvVectors, jobVectors service.VectorStore
	if simulate {
		a.client = simulator.New()
		cvVectors = newMemoryVectorStore()
		jobVectors = newMemoryVectorStore()
	} else {
		if err := cfg.Provider.Validate(); err != nil {
			return nil, err
		}
		a.client = openai.New(&openai.Config{
			BaseURL: cfg.Provider.BaseURL,
			APIKey:  cfg.Provider.APIKey,
			Timeout: cfg.Provider.Timeout,
		})

		cvVectors, err = a.openVectorRepo(ctx, cfg.Qdrant.CvCollection, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, err
		}
		jobVectors, err = a.openVectorRepo(ctx, cfg.Qdrant.JobCollection, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, err
		}
	}

	registry, err := service.NewRegistry(
		service.NewParsingTask(candidates, &cfg.Parsing),
		service.NewCvEmbeddingTask(candidates, cvVectors, &cfg.Embedding),
		service.NewJobEmbeddingTask(jobs, jobVectors, &cfg.Embedding),
		service.NewExplanationTask(predictions, candidates, jobs, &cfg.Parsing),
	)
	if err != nil {
		return nil, err
	}
	a.registry = registry

	sizer := service.NewSizer(cfg.Batch.DefaultSize)
	a.submitter = service.NewSubmitter(db, a.client, sizer)

	var pollerOpts []service.PollerOption
	if cfg.Archive.Enabled {
		store, err := storage.NewS3Storage(&storage.S3Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize archive storage: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure archive bucket: %w", err)
		}
		pollerOpts = append(pollerOpts, service.WithArchive(store))
	}
	a.poller = service.NewPoller(db, a.client, registry, cfg.Batch.PollLimit, cfg.Batch.ClaimLease, pollerOpts...)

	return a, nil
}

func (a *app) openVectorRepo(ctx context.Context, collection string, dimensions int) (*repository.VectorRepository, error) {
	repo, err := repository.NewVectorRepository(&repository.VectorConnectionConfig{
		Host:            a.cfg.Qdrant.Host,
		Port:            a.cfg.Qdrant.Port,
		Collection:      collection,
		APIKey:          a.cfg.Qdrant.APIKey,
		UseTLS:          a.cfg.Qdrant.UseTLS,
		VectorDimension: dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to vector store: %w", err)
	}
	if err := repo.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure collection %s: %w", collection, err)
	}
	a.closers = append(a.closers, repo.Close)
	return repo, nil
}

func (a *app) close() {
	for _, fn := range a.closers {
		if err := fn(); err != nil {
			logger.GetDefault().WithError(err).Warn("Failed to close resource")
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// memoryVectorStore backs simulate mode, where no Qdrant is available.
type memoryVectorStore struct {
	mu      sync.Mutex
	vectors map[string][]float32
}

func newMemoryVectorStore() *memoryVectorStore {
	return &memoryVectorStore{vectors: make(map[string][]float32)}
}

func (m *memoryVectorStore) Upsert(_ context.Context, pointID string, vector []float32, _ *repository.VectorPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[pointID] = vector
	return nil
}
