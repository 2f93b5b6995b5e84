package provider

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// maxArtifactLine bounds a single JSONL line. Embedding result lines carry
// full vectors and run long.
const maxArtifactLine = 16 * 1024 * 1024

// EncodeRequests writes records as a newline-delimited JSON artifact.
func EncodeRequests(records []RequestRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return nil, fmt.Errorf("failed to encode request %q: %w", records[i].CustomID, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeRequests reads a newline-delimited request artifact.
func DecodeRequests(r io.Reader) ([]RequestRecord, error) {
	var records []RequestRecord
	if err := scanLines(r, func(line []byte) error {
		var rec RequestRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("malformed request line: %w", err)
		}
		records = append(records, rec)
		return nil
	}); err != nil {
		return nil, err
	}
	return records, nil
}

// EncodeResults writes records as a newline-delimited JSON artifact.
func EncodeResults(records []ResultRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return nil, fmt.Errorf("failed to encode result %q: %w", records[i].CustomID, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeResults reads a newline-delimited result artifact.
func DecodeResults(r io.Reader) ([]ResultRecord, error) {
	var records []ResultRecord
	if err := scanLines(r, func(line []byte) error {
		var rec ResultRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("malformed result line: %w", err)
		}
		records = append(records, rec)
		return nil
	}); err != nil {
		return nil, err
	}
	return records, nil
}

func scanLines(r io.Reader, fn func(line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxArtifactLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
