package service

import (
	"fmt"
	"strings"
)

// Custom ID prefixes correlate wire requests with local items. The format is
// a contract between request builders and result handlers.
const (
	cvParsePrefix     = "cv-parse-"
	cvEmbedPrefix     = "cv-"
	jobEmbedPrefix    = "job-"
	predictionPrefix  = "pred-"
	predictionJobJoin = "-job-"
)

func parseCustomID(customID, prefix string) (string, error) {
	if !strings.HasPrefix(customID, prefix) {
		return "", fmt.Errorf("custom id %q missing prefix %q", customID, prefix)
	}
	id := strings.TrimPrefix(customID, prefix)
	if id == "" {
		return "", fmt.Errorf("custom id %q has empty item id", customID)
	}
	return id, nil
}

// parsePredictionCustomID extracts the prediction ID from
// "pred-{predictionID}-job-{jobID}".
func parsePredictionCustomID(customID string) (string, error) {
	rest, err := parseCustomID(customID, predictionPrefix)
	if err != nil {
		return "", err
	}
	idx := strings.Index(rest, predictionJobJoin)
	if idx <= 0 {
		return "", fmt.Errorf("custom id %q missing job segment", customID)
	}
	return rest[:idx], nil
}

// chatMessage is one message in a chat completion request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatCompletionBody is the request body for /v1/chat/completions lines in a
// batch input artifact.
type chatCompletionBody struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// chatCompletionResult is the subset of a chat completion response the
// result handlers read.
type chatCompletionResult struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// embeddingBody is the request body for /v1/embeddings lines in a batch
// input artifact.
type embeddingBody struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// embeddingResult is the subset of an embeddings response the result
// handlers read.
type embeddingResult struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func firstChoiceContent(result *chatCompletionResult) (string, error) {
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("response has no choices")
	}
	content := result.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("response choice has empty content")
	}
	return content, nil
}
