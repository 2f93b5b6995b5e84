package service

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
	"github.com/99-NinetyNine/cv-jd-matching/internal/provider"
	"github.com/99-NinetyNine/cv-jd-matching/internal/repository"
)

// Workload is the submission side of one batch domain: it counts pending
// items, turns the oldest of them into wire requests, and transitions the
// selected items to processing.
type Workload interface {
	Type() domain.BatchType

	// PendingCount returns how many items currently await this workload.
	PendingCount(ctx context.Context) (int, error)

	// BuildRequests selects the oldest limit pending items and converts
	// them into wire requests. Items missing required input are skipped and
	// left pending. Returns the requests and the IDs of the items built.
	BuildRequests(ctx context.Context, limit int) ([]provider.RequestRecord, []string, error)

	// MarkProcessing transitions the built items to processing inside tx.
	MarkProcessing(ctx context.Context, tx *gorm.DB, ids []string) error
}

// ResultHandler is the completion side of one batch domain: it applies one
// decoded result record, or a wholesale batch failure, back onto item state.
//
// Implementations must be idempotent and must not overwrite an item that
// already reached a terminal status. A malformed payload fails that item
// only; an error return is reserved for storage failures and aborts the
// surrounding transaction.
type ResultHandler interface {
	Type() domain.BatchType

	// HandleResult applies one output or error record to its item.
	HandleResult(ctx context.Context, tx *gorm.DB, rec provider.ResultRecord) error

	// HandleFailure marks the item behind customID as failed with reason.
	// Used for error artifacts without payloads and for batches that failed
	// wholesale.
	HandleFailure(ctx context.Context, tx *gorm.DB, customID, reason string) error
}

// DomainTask is one fully wired batch domain, usable by both the submitter
// and the poller.
type DomainTask interface {
	Workload
	ResultHandler
}

// VectorStore persists embedding vectors. Satisfied by
// repository.VectorRepository; tests substitute an in-memory fake.
type VectorStore interface {
	Upsert(ctx context.Context, pointID string, vector []float32, payload *repository.VectorPayload) error
}

// Registry maps batch types to their domain tasks. Construction fails unless
// every batch type is covered exactly once, so a routing gap is caught at
// startup rather than at result time.
type Registry struct {
	tasks map[domain.BatchType]DomainTask
}

// NewRegistry builds a registry from the given tasks.
func NewRegistry(tasks ...DomainTask) (*Registry, error) {
	byType := make(map[domain.BatchType]DomainTask, len(tasks))
	for _, task := range tasks {
		if _, dup := byType[task.Type()]; dup {
			return nil, fmt.Errorf("duplicate task for batch type %s", task.Type())
		}
		byType[task.Type()] = task
	}
	for _, t := range domain.AllBatchTypes {
		if _, ok := byType[t]; !ok {
			return nil, fmt.Errorf("no task registered for batch type %s", t)
		}
	}
	return &Registry{tasks: byType}, nil
}

// Task returns the domain task for the given batch type.
func (r *Registry) Task(t domain.BatchType) (DomainTask, error) {
	task, ok := r.tasks[t]
	if !ok {
		return nil, fmt.Errorf("no task registered for batch type %s", t)
	}
	return task, nil
}
