package ai

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeUnitLength(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("normalized vector has squared length %v, want 1", sum)
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("normalized vector = %v, want [0.6 0.8]", v)
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	Normalize(v)
	for _, x := range v {
		if x != 0 {
			t.Fatal("zero vector must stay zero")
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 1 {
		t.Errorf("empty string estimate = %d, want floor of 1", got)
	}
	if got := EstimateTokens("abcdefgh"); got != 2 {
		t.Errorf("8 chars estimate = %d, want 2", got)
	}
}

func TestOpenAIEmbedderMapsIndices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		var req openAIEmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		// Answer out of order, the client must restore input order
		resp := openAIEmbeddingResponse{}
		resp.Data = []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}{
			{Index: 1, Embedding: []float32{0, 1}},
			{Index: 0, Embedding: []float32{1, 0}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	embedder := newOpenAIEmbedder(server.URL, "test-key", "text-embedding-3-small")
	vectors, err := embedder.embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Errorf("vectors not restored to input order: %v", vectors)
	}
}

func TestOpenAIEmbedderRetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		resp := openAIEmbeddingResponse{}
		resp.Data = []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}{
			{Index: 0, Embedding: []float32{0.5}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	embedder := newOpenAIEmbedder(server.URL, "k", "m")
	vectors, err := embedder.embed(context.Background(), []string{"text"})
	if err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(vectors) != 1 {
		t.Fatalf("got %d vectors, want 1", len(vectors))
	}
}

func TestOpenAIEmbedderStopsOnClientError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	embedder := newOpenAIEmbedder(server.URL, "k", "m")
	if _, err := embedder.embed(context.Background(), []string{"text"}); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if attempts != 1 {
		t.Errorf("client errors must not be retried, got %d attempts", attempts)
	}
}
