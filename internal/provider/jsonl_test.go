package provider

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestEncodeDecodeRequests(t *testing.T) {
	records := []RequestRecord{
		{CustomID: "cv-1", Method: "POST", URL: "/v1/embeddings", Body: json.RawMessage(`{"input":["a"]}`)},
		{CustomID: "cv-2", Method: "POST", URL: "/v1/embeddings", Body: json.RawMessage(`{"input":["b"]}`)},
	}

	data, err := EncodeRequests(records)
	if err != nil {
		t.Fatalf("EncodeRequests() error = %v", err)
	}
	if got := bytes.Count(data, []byte("\n")); got != 2 {
		t.Errorf("encoded artifact has %d lines, want 2", got)
	}

	decoded, err := DecodeRequests(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeRequests() error = %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded %d records, want 2", len(decoded))
	}
	if decoded[0].CustomID != "cv-1" || decoded[1].CustomID != "cv-2" {
		t.Errorf("decoded custom ids = %q, %q", decoded[0].CustomID, decoded[1].CustomID)
	}
}

func TestDecodeRequestsSkipsBlankLines(t *testing.T) {
	input := "\n" + `{"custom_id":"job-1","method":"POST","url":"/v1/embeddings","body":{}}` + "\n\n"
	decoded, err := DecodeRequests(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeRequests() error = %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("decoded %d records, want 1", len(decoded))
	}
}

func TestDecodeRequestsMalformedLine(t *testing.T) {
	if _, err := DecodeRequests(strings.NewReader("not-json\n")); err == nil {
		t.Fatal("DecodeRequests() expected error for malformed line")
	}
}

func TestDecodeResults(t *testing.T) {
	input := `{"id":"r1","custom_id":"cv-1","response":{"status_code":200,"body":{"ok":true}}}` + "\n" +
		`{"id":"r2","custom_id":"cv-2","error":{"code":"rate_limited","message":"slow down"}}` + "\n"

	decoded, err := DecodeResults(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeResults() error = %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded %d records, want 2", len(decoded))
	}
	if !decoded[0].Succeeded() {
		t.Errorf("record %q should be a success", decoded[0].CustomID)
	}
	if decoded[1].Succeeded() {
		t.Errorf("record %q should be a failure", decoded[1].CustomID)
	}
	if decoded[1].Error.Code != "rate_limited" {
		t.Errorf("error code = %q, want rate_limited", decoded[1].Error.Code)
	}
}
