// Package provider abstracts the remote bulk-inference API. The orchestrator
// talks to a Client only; the openai subpackage implements it against the
// real Files/Batches endpoints and the simulator subpackage implements a
// deterministic in-memory double for tests.
package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
)

// RequestRecord is one wire-level request inside a batch input artifact.
// CustomID is the domain-prefixed correlation key; its format is a contract
// with the result handlers, not an implementation detail.
type RequestRecord struct {
	CustomID string          `json:"custom_id"`
	Method   string          `json:"method"`
	URL      string          `json:"url"`
	Body     json.RawMessage `json:"body"`
}

// ResultResponse carries the provider's successful response for one request.
type ResultResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
}

// ResultError carries the provider's per-request failure detail.
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResultRecord is one wire-level result from a batch output or error
// artifact. Exactly one of Response and Error is set, never both.
type ResultRecord struct {
	ID       string          `json:"id"`
	CustomID string          `json:"custom_id"`
	Response *ResultResponse `json:"response"`
	Error    *ResultError    `json:"error"`
}

// Succeeded reports whether the record carries a success payload.
func (r *ResultRecord) Succeeded() bool {
	return r.Error == nil && r.Response != nil
}

// Batch is the provider-side handle for one bulk job.
type Batch struct {
	ID           string
	Status       domain.BatchStatus
	InputFileID  string
	OutputFileID string
	ErrorFileID  string
	Counts       domain.RequestCounts
	CreatedAt    time.Time
	Metadata     map[string]string
}

// Client is the abstraction over the remote bulk-inference provider.
//
// RetrieveBatch is read-only and idempotent; CancelBatch is best-effort and
// does not guarantee in-flight work stops.
type Client interface {
	// UploadFile writes the full request list as one artifact and returns
	// its file reference. It must not partially upload.
	UploadFile(ctx context.Context, name string, records []RequestRecord) (string, error)

	// CreateBatch submits a batch over a previously uploaded input file.
	CreateBatch(ctx context.Context, inputFileID, endpoint string, metadata map[string]string) (*Batch, error)

	// RetrieveBatch fetches the current provider-side state of a batch.
	RetrieveBatch(ctx context.Context, remoteID string) (*Batch, error)

	// ListBatches fetches recent provider-side batches, newest first.
	ListBatches(ctx context.Context, limit int) ([]*Batch, error)

	// RetrieveResults downloads and decodes an output or error artifact.
	// A request present in the input but absent from both artifacts is a
	// protocol violation the caller must tolerate.
	RetrieveResults(ctx context.Context, fileID string) ([]ResultRecord, error)

	// RetrieveInput downloads and decodes an input artifact. Used to
	// recover the referenced items of a batch that failed wholesale.
	RetrieveInput(ctx context.Context, fileID string) ([]RequestRecord, error)

	// CancelBatch requests cancellation of a batch.
	CancelBatch(ctx context.Context, remoteID string) error
}
