// Package simulator provides a deterministic in-memory provider.Client for
// tests. Batches complete synchronously at creation time, per-item failures
// are injected at a configurable rate into a separate error artifact, and the
// reported status can be overridden to exercise every lifecycle transition.
package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
	"github.com/99-NinetyNine/cv-jd-matching/internal/provider"
)

// Responder produces the success body for one simulated request.
// Returning an error turns the request into an error-artifact record.
type Responder func(req provider.RequestRecord) (json.RawMessage, error)

// Simulator implements provider.Client deterministically in memory.
type Simulator struct {
	mu      sync.Mutex
	files   map[string][]byte
	batches map[string]*provider.Batch
	fileSeq int
	jobSeq  int

	// FailureRate injects a per-item failure into the error artifact for
	// every round(1/rate)-th request. Zero disables injection.
	FailureRate float64

	// ForceStatus, when set, is the status assigned to newly created
	// batches instead of completed. Non-completed forced statuses produce
	// no output or error artifacts.
	ForceStatus domain.BatchStatus

	// DropEveryNth, when positive, omits every Nth request from both the
	// output and error artifacts to simulate a provider protocol
	// violation. Dropped requests do not count as failures.
	DropEveryNth int

	// EmbeddingDims is the dimensionality of simulated embedding vectors.
	EmbeddingDims int

	responders map[string]Responder
}

// New creates a simulator with default per-endpoint responders.
func New() *Simulator {
	s := &Simulator{
		files:         make(map[string][]byte),
		batches:       make(map[string]*provider.Batch),
		EmbeddingDims: 1536,
		responders:    make(map[string]Responder),
	}
	s.responders["/v1/embeddings"] = s.embeddingResponder
	s.responders["/v1/chat/completions"] = chatResponder
	return s
}

// SetResponder replaces the responder for an endpoint.
func (s *Simulator) SetResponder(endpoint string, fn Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responders[endpoint] = fn
}

// SetStatus overrides the reported status of an existing batch.
func (s *Simulator) SetStatus(remoteID string, status domain.BatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[remoteID]
	if !ok {
		return fmt.Errorf("simulator: unknown batch %s", remoteID)
	}
	b.Status = status
	return nil
}

// UploadFile stores the encoded request list as one artifact.
func (s *Simulator) UploadFile(_ context.Context, _ string, records []provider.RequestRecord) (string, error) {
	data, err := provider.EncodeRequests(records)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileSeq++
	id := fmt.Sprintf("file-sim-%04d", s.fileSeq)
	s.files[id] = data
	return id, nil
}

// CreateBatch runs the batch synchronously and records its artifacts.
func (s *Simulator) CreateBatch(_ context.Context, inputFileID, endpoint string, metadata map[string]string) (*provider.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.files[inputFileID]
	if !ok {
		return nil, fmt.Errorf("simulator: unknown input file %s", inputFileID)
	}
	requests, err := provider.DecodeRequests(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	s.jobSeq++
	batch := &provider.Batch{
		ID:          fmt.Sprintf("batch-sim-%04d", s.jobSeq),
		Status:      domain.BatchStatusCompleted,
		InputFileID: inputFileID,
		CreatedAt:   time.Now(),
		Metadata:    metadata,
		Counts:      domain.RequestCounts{Total: len(requests)},
	}

	if s.ForceStatus != "" && s.ForceStatus != domain.BatchStatusCompleted {
		batch.Status = s.ForceStatus
		s.batches[batch.ID] = batch
		return copyBatch(batch), nil
	}

	failEvery := 0
	if s.FailureRate > 0 {
		failEvery = int(math.Round(1 / s.FailureRate))
	}

	responder := s.responders[endpoint]
	var successes, failures []provider.ResultRecord
	for i, req := range requests {
		if s.DropEveryNth > 0 && (i+1)%s.DropEveryNth == 0 {
			continue
		}

		rec := provider.ResultRecord{
			ID:       fmt.Sprintf("%s-res-%d", batch.ID, i),
			CustomID: req.CustomID,
		}

		if failEvery > 0 && (i+1)%failEvery == 0 {
			rec.Error = &provider.ResultError{
				Code:    "simulated_failure",
				Message: fmt.Sprintf("injected failure for %s", req.CustomID),
			}
			failures = append(failures, rec)
			continue
		}

		if responder == nil {
			rec.Error = &provider.ResultError{
				Code:    "unsupported_endpoint",
				Message: fmt.Sprintf("no responder for %s", endpoint),
			}
			failures = append(failures, rec)
			continue
		}

		body, err := responder(req)
		if err != nil {
			rec.Error = &provider.ResultError{Code: "responder_error", Message: err.Error()}
			failures = append(failures, rec)
			continue
		}
		rec.Response = &provider.ResultResponse{StatusCode: 200, Body: body}
		successes = append(successes, rec)
	}

	if len(successes) > 0 {
		out, err := provider.EncodeResults(successes)
		if err != nil {
			return nil, err
		}
		s.fileSeq++
		batch.OutputFileID = fmt.Sprintf("file-sim-%04d", s.fileSeq)
		s.files[batch.OutputFileID] = out
	}
	if len(failures) > 0 {
		out, err := provider.EncodeResults(failures)
		if err != nil {
			return nil, err
		}
		s.fileSeq++
		batch.ErrorFileID = fmt.Sprintf("file-sim-%04d", s.fileSeq)
		s.files[batch.ErrorFileID] = out
	}

	batch.Counts.Completed = len(successes)
	batch.Counts.Failed = len(failures)
	if s.ForceStatus != "" {
		batch.Status = s.ForceStatus
	}

	s.batches[batch.ID] = batch
	return copyBatch(batch), nil
}

// RetrieveBatch returns the current state of a simulated batch.
func (s *Simulator) RetrieveBatch(_ context.Context, remoteID string) (*provider.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[remoteID]
	if !ok {
		return nil, fmt.Errorf("simulator: unknown batch %s", remoteID)
	}
	return copyBatch(b), nil
}

// ListBatches returns all simulated batches.
func (s *Simulator) ListBatches(_ context.Context, limit int) ([]*provider.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batches := make([]*provider.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		batches = append(batches, copyBatch(b))
		if limit > 0 && len(batches) >= limit {
			break
		}
	}
	return batches, nil
}

// RetrieveResults decodes a stored output or error artifact.
func (s *Simulator) RetrieveResults(_ context.Context, fileID string) ([]provider.ResultRecord, error) {
	s.mu.Lock()
	data, ok := s.files[fileID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("simulator: unknown file %s", fileID)
	}
	return provider.DecodeResults(bytes.NewReader(data))
}

// RetrieveInput decodes a stored input artifact.
func (s *Simulator) RetrieveInput(_ context.Context, fileID string) ([]provider.RequestRecord, error) {
	s.mu.Lock()
	data, ok := s.files[fileID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("simulator: unknown file %s", fileID)
	}
	return provider.DecodeRequests(bytes.NewReader(data))
}

// CancelBatch marks a simulated batch cancelled.
func (s *Simulator) CancelBatch(_ context.Context, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[remoteID]
	if !ok {
		return fmt.Errorf("simulator: unknown batch %s", remoteID)
	}
	b.Status = domain.BatchStatusCancelled
	return nil
}

func copyBatch(b *provider.Batch) *provider.Batch {
	dup := *b
	if b.Metadata != nil {
		dup.Metadata = make(map[string]string, len(b.Metadata))
		for k, v := range b.Metadata {
			dup.Metadata[k] = v
		}
	}
	return &dup
}

// embeddingResponder produces a deterministic unit-length-free vector seeded
// by the request's customId.
func (s *Simulator) embeddingResponder(req provider.RequestRecord) (json.RawMessage, error) {
	dims := s.EmbeddingDims
	if dims <= 0 {
		dims = 1536
	}

	h := fnv.New32a()
	h.Write([]byte(req.CustomID))
	seed := h.Sum32()

	vector := make([]float32, dims)
	state := uint64(seed) | 1
	for i := range vector {
		state = state*6364136223846793005 + 1442695040888963407
		vector[i] = float32(state>>40)/float32(1<<24)*2 - 1
	}

	body := map[string]interface{}{
		"object": "list",
		"data": []map[string]interface{}{
			{"object": "embedding", "index": 0, "embedding": vector},
		},
		"model": "simulated-embedding",
	}
	return json.Marshal(body)
}

// chatResponder returns a canned chat completion whose content is a minimal
// parsed-résumé document, which also serves as explanation text.
func chatResponder(req provider.RequestRecord) (json.RawMessage, error) {
	content := `{"name":"Simulated Candidate","email":"candidate@example.com","skills":["Go","SQL"],"experience_years":4}`
	if strings.Contains(req.CustomID, "pred-") {
		content = "Strong overlap between the candidate's core skills and the role requirements."
	}
	body := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
		"model": "simulated-chat",
	}
	return json.Marshal(body)
}
