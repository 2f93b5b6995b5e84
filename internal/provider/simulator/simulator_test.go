package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"testing"

	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
	"github.com/99-NinetyNine/cv-jd-matching/internal/provider"
)

func makeRequests(n int) []provider.RequestRecord {
	records := make([]provider.RequestRecord, n)
	for i := range records {
		records[i] = provider.RequestRecord{
			CustomID: fmt.Sprintf("cv-%04d", i),
			Method:   "POST",
			URL:      "/v1/embeddings",
			Body:     json.RawMessage(`{"input":["text"]}`),
		}
	}
	return records
}

func runBatch(t *testing.T, s *Simulator, records []provider.RequestRecord, endpoint string) *provider.Batch {
	t.Helper()
	ctx := context.Background()

	fileID, err := s.UploadFile(ctx, "input.jsonl", records)
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	batch, err := s.CreateBatch(ctx, fileID, endpoint, nil)
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	return batch
}

func TestFailureInjectionIsExact(t *testing.T) {
	s := New()
	s.FailureRate = 0.05

	batch := runBatch(t, s, makeRequests(120), "/v1/embeddings")

	if batch.Status != domain.BatchStatusCompleted {
		t.Fatalf("batch status = %s, want completed", batch.Status)
	}
	if batch.Counts.Completed != 114 || batch.Counts.Failed != 6 {
		t.Errorf("counts = %d completed, %d failed, want 114/6",
			batch.Counts.Completed, batch.Counts.Failed)
	}

	errs, err := s.RetrieveResults(context.Background(), batch.ErrorFileID)
	if err != nil {
		t.Fatalf("RetrieveResults() error = %v", err)
	}
	if len(errs) != 6 {
		t.Fatalf("error artifact has %d records, want 6", len(errs))
	}
	// Every 20th request fails, deterministically.
	for i, rec := range errs {
		want := fmt.Sprintf("cv-%04d", (i+1)*20-1)
		if rec.CustomID != want {
			t.Errorf("failed record %d = %q, want %q", i, rec.CustomID, want)
		}
	}
}

func TestEmbeddingsAreDeterministic(t *testing.T) {
	s := New()
	s.EmbeddingDims = 8

	first := runBatch(t, s, makeRequests(2), "/v1/embeddings")
	second := runBatch(t, s, makeRequests(2), "/v1/embeddings")

	firstOut, err := s.RetrieveResults(context.Background(), first.OutputFileID)
	if err != nil {
		t.Fatalf("RetrieveResults() error = %v", err)
	}
	secondOut, err := s.RetrieveResults(context.Background(), second.OutputFileID)
	if err != nil {
		t.Fatalf("RetrieveResults() error = %v", err)
	}

	type embeddingBody struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	decode := func(rec provider.ResultRecord) []float32 {
		var body embeddingBody
		if err := json.Unmarshal(rec.Response.Body, &body); err != nil {
			t.Fatalf("unmarshal embedding body: %v", err)
		}
		if len(body.Data) != 1 {
			t.Fatalf("embedding body has %d entries, want 1", len(body.Data))
		}
		return body.Data[0].Embedding
	}

	v1, v2 := decode(firstOut[0]), decode(secondOut[0])
	if len(v1) != 8 {
		t.Fatalf("vector length = %d, want 8", len(v1))
	}
	if !reflect.DeepEqual(v1, v2) {
		t.Error("same custom id produced different vectors across batches")
	}
	if reflect.DeepEqual(v1, decode(firstOut[1])) {
		t.Error("different custom ids produced identical vectors")
	}
}

func TestDropEveryNthOmitsFromBothArtifacts(t *testing.T) {
	s := New()
	s.DropEveryNth = 5

	batch := runBatch(t, s, makeRequests(10), "/v1/embeddings")

	out, err := s.RetrieveResults(context.Background(), batch.OutputFileID)
	if err != nil {
		t.Fatalf("RetrieveResults() error = %v", err)
	}
	if len(out) != 8 {
		t.Errorf("output artifact has %d records, want 8", len(out))
	}
	if batch.ErrorFileID != "" {
		t.Errorf("dropped requests must not appear in the error artifact")
	}

	seen := make(map[string]bool)
	for _, rec := range out {
		seen[rec.CustomID] = true
	}
	for _, dropped := range []string{"cv-0004", "cv-0009"} {
		if seen[dropped] {
			t.Errorf("request %s should have been dropped", dropped)
		}
	}
}

func TestForcedStatusProducesNoArtifacts(t *testing.T) {
	s := New()
	s.ForceStatus = domain.BatchStatusInProgress

	batch := runBatch(t, s, makeRequests(4), "/v1/embeddings")

	if batch.Status != domain.BatchStatusInProgress {
		t.Fatalf("batch status = %s, want in_progress", batch.Status)
	}
	if batch.OutputFileID != "" || batch.ErrorFileID != "" {
		t.Error("forced non-completed batch must not carry artifacts")
	}

	if err := s.SetStatus(batch.ID, domain.BatchStatusExpired); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	got, err := s.RetrieveBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("RetrieveBatch() error = %v", err)
	}
	if got.Status != domain.BatchStatusExpired {
		t.Errorf("batch status = %s, want expired", got.Status)
	}
}

func TestChatResponderRoutesByCustomID(t *testing.T) {
	s := New()

	records := []provider.RequestRecord{
		{CustomID: "cv-parse-1", Method: "POST", URL: "/v1/chat/completions", Body: json.RawMessage(`{}`)},
		{CustomID: "pred-1-job-2", Method: "POST", URL: "/v1/chat/completions", Body: json.RawMessage(`{}`)},
	}
	batch := runBatch(t, s, records, "/v1/chat/completions")

	out, err := s.RetrieveResults(context.Background(), batch.OutputFileID)
	if err != nil {
		t.Fatalf("RetrieveResults() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("output artifact has %d records, want 2", len(out))
	}

	var body struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(out[0].Response.Body, &body); err != nil {
		t.Fatalf("unmarshal chat body: %v", err)
	}
	var profile map[string]interface{}
	if err := json.Unmarshal([]byte(body.Choices[0].Message.Content), &profile); err != nil {
		t.Errorf("parse request content is not a JSON document: %v", err)
	}

	if err := json.Unmarshal(out[1].Response.Body, &body); err != nil {
		t.Fatalf("unmarshal chat body: %v", err)
	}
	if json.Valid([]byte(body.Choices[0].Message.Content)) {
		t.Error("explanation content should be plain text, not JSON")
	}
}
