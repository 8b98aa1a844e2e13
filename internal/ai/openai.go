package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	openAIMaxRetries  = 3
	openAIBaseBackoff = 500 * time.Millisecond
)

// openAIEmbedder calls the OpenAI embeddings endpoint directly. Transient
// failures (429, 5xx) are retried with backoff, honoring Retry-After when
// the server sends one.
type openAIEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func newOpenAIEmbedder(baseURL, apiKey, model string) *openAIEmbedder {
	return &openAIEmbedder{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (o *openAIEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(openAIEmbeddingRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= openAIMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(openAIBaseBackoff * time.Duration(1<<(attempt-1))):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		vectors, retryAfter, err := o.decode(resp, len(texts))
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if retryAfter > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryAfter):
			}
		}
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			break
		}
	}
	return nil, fmt.Errorf("openai embeddings request failed: %w", lastErr)
}

func (o *openAIEmbedder) decode(resp *http.Response, want int) ([][]float32, time.Duration, error) {
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, 0, err
	}

	if resp.StatusCode != http.StatusOK {
		var retryAfter time.Duration
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		var parsed openAIEmbeddingResponse
		if json.Unmarshal(payload, &parsed) == nil && parsed.Error != nil {
			return nil, retryAfter, fmt.Errorf("status %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return nil, retryAfter, fmt.Errorf("status %d", resp.StatusCode)
	}

	var parsed openAIEmbeddingResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, 0, err
	}
	if len(parsed.Data) != want {
		return nil, 0, fmt.Errorf("embedding count mismatch: got %d, want %d", len(parsed.Data), want)
	}

	// The API may reorder results, index maps them back to inputs.
	vectors := make([][]float32, want)
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= want {
			return nil, 0, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, 0, nil
}
