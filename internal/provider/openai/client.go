// Package openai implements the provider.Client interface against an
// OpenAI-compatible Files + Batches API.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
	"github.com/99-NinetyNine/cv-jd-matching/internal/provider"
)

// Client talks to the real bulk-inference provider.
type Client struct {
	client  *resty.Client
	baseURL string
}

// Config holds configuration for the production client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New creates a production batch client.
func New(cfg *Config) *Client {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	// Set timeout to prevent hanging requests
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	client.SetTimeout(timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &Client{
		client:  client,
		baseURL: baseURL,
	}
}

// API wire structures.
type fileResponse struct {
	ID    string    `json:"id"`
	Bytes int64     `json:"bytes"`
	Error *apiError `json:"error,omitempty"`
}

type batchResponse struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	InputFileID  string            `json:"input_file_id"`
	OutputFileID string            `json:"output_file_id"`
	ErrorFileID  string            `json:"error_file_id"`
	CreatedAt    int64             `json:"created_at"`
	Metadata     map[string]string `json:"metadata"`
	RequestCounts struct {
		Total     int `json:"total"`
		Completed int `json:"completed"`
		Failed    int `json:"failed"`
	} `json:"request_counts"`
	Error *apiError `json:"error,omitempty"`
}

type batchListResponse struct {
	Data  []batchResponse `json:"data"`
	Error *apiError       `json:"error,omitempty"`
}

type createBatchRequest struct {
	InputFileID      string            `json:"input_file_id"`
	Endpoint         string            `json:"endpoint"`
	CompletionWindow string            `json:"completion_window"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (b *batchResponse) toBatch() *provider.Batch {
	return &provider.Batch{
		ID:           b.ID,
		Status:       domain.BatchStatus(b.Status),
		InputFileID:  b.InputFileID,
		OutputFileID: b.OutputFileID,
		ErrorFileID:  b.ErrorFileID,
		Counts: domain.RequestCounts{
			Total:     b.RequestCounts.Total,
			Completed: b.RequestCounts.Completed,
			Failed:    b.RequestCounts.Failed,
		},
		CreatedAt: time.Unix(b.CreatedAt, 0),
		Metadata:  b.Metadata,
	}
}

// UploadFile encodes records as JSONL and uploads them with purpose "batch".
func (c *Client) UploadFile(ctx context.Context, name string, records []provider.RequestRecord) (string, error) {
	data, err := provider.EncodeRequests(records)
	if err != nil {
		return "", err
	}

	var resp fileResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetFileReader("file", name, bytes.NewReader(data)).
		SetFormData(map[string]string{"purpose": "batch"}).
		SetResult(&resp).
		SetError(&resp).
		Post(c.baseURL + "/files")

	if err != nil {
		return "", fmt.Errorf("failed to upload batch file: %w", err)
	}
	if httpResp.IsError() {
		return "", apiErrorf("file upload", httpResp.StatusCode(), resp.Error)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("file upload returned no file id")
	}

	return resp.ID, nil
}

// CreateBatch submits a batch over an uploaded input file.
func (c *Client) CreateBatch(ctx context.Context, inputFileID, endpoint string, metadata map[string]string) (*provider.Batch, error) {
	req := createBatchRequest{
		InputFileID:      inputFileID,
		Endpoint:         endpoint,
		CompletionWindow: "24h",
		Metadata:         metadata,
	}

	var resp batchResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(c.baseURL + "/batches")

	if err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}
	if httpResp.IsError() {
		return nil, apiErrorf("batch create", httpResp.StatusCode(), resp.Error)
	}

	return resp.toBatch(), nil
}

// RetrieveBatch fetches the current state of a batch. Read-only, idempotent.
func (c *Client) RetrieveBatch(ctx context.Context, remoteID string) (*provider.Batch, error) {
	var resp batchResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetResult(&resp).
		SetError(&resp).
		Get(c.baseURL + "/batches/" + remoteID)

	if err != nil {
		return nil, fmt.Errorf("failed to retrieve batch %s: %w", remoteID, err)
	}
	if httpResp.IsError() {
		return nil, apiErrorf("batch retrieve", httpResp.StatusCode(), resp.Error)
	}

	return resp.toBatch(), nil
}

// ListBatches fetches recent provider-side batches.
func (c *Client) ListBatches(ctx context.Context, limit int) ([]*provider.Batch, error) {
	var resp batchListResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetResult(&resp).
		SetError(&resp).
		Get(c.baseURL + "/batches")

	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	if httpResp.IsError() {
		return nil, apiErrorf("batch list", httpResp.StatusCode(), resp.Error)
	}

	batches := make([]*provider.Batch, 0, len(resp.Data))
	for i := range resp.Data {
		batches = append(batches, resp.Data[i].toBatch())
	}
	return batches, nil
}

// RetrieveResults downloads and decodes an output or error artifact.
func (c *Client) RetrieveResults(ctx context.Context, fileID string) ([]provider.ResultRecord, error) {
	data, err := c.downloadFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return provider.DecodeResults(bytes.NewReader(data))
}

// RetrieveInput downloads and decodes an input artifact.
func (c *Client) RetrieveInput(ctx context.Context, fileID string) ([]provider.RequestRecord, error) {
	data, err := c.downloadFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return provider.DecodeRequests(bytes.NewReader(data))
}

// CancelBatch requests cancellation. Best-effort: in-flight work may finish.
func (c *Client) CancelBatch(ctx context.Context, remoteID string) error {
	var resp batchResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetResult(&resp).
		SetError(&resp).
		Post(c.baseURL + "/batches/" + remoteID + "/cancel")

	if err != nil {
		return fmt.Errorf("failed to cancel batch %s: %w", remoteID, err)
	}
	if httpResp.IsError() {
		return apiErrorf("batch cancel", httpResp.StatusCode(), resp.Error)
	}
	return nil
}

func (c *Client) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(false).
		Get(c.baseURL + "/files/" + fileID + "/content")

	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	if httpResp.IsError() {
		return nil, fmt.Errorf("file download error: status %d", httpResp.StatusCode())
	}

	return httpResp.Body(), nil
}

func apiErrorf(op string, status int, apiErr *apiError) error {
	if apiErr != nil && apiErr.Message != "" {
		return fmt.Errorf("%s error: %s", op, apiErr.Message)
	}
	return fmt.Errorf("%s error: status %d", op, status)
}
