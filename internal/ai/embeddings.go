package ai

import (
	"context"
	"fmt"
	"math"

	"github.com/seehafer/fda-guidance-navigator/internal/config"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Embedder turns text into vectors in a fixed embedding space. The same
// instance must serve both ingestion and query embedding so the space never
// drifts between the two.
type Embedder struct {
	provider    string
	dim         int
	google      *genai.Client
	googleModel string
	openai      *openAIEmbedder
}

func NewEmbedder(ctx context.Context, cfg *config.Config) (*Embedder, error) {
	e := &Embedder{
		provider: cfg.EmbeddingsProvider,
		dim:      cfg.VectorDimensions,
	}

	switch cfg.EmbeddingsProvider {
	case "google", "":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			return nil, err
		}
		e.provider = "google"
		e.google = client
		e.googleModel = cfg.GoogleEmbeddingsModel

	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("missing OPENAI_API_KEY for embeddings")
		}
		e.openai = newOpenAIEmbedder(cfg.OpenAIAPIBase, cfg.OpenAIAPIKey, cfg.OpenAIEmbeddingsModel)

	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}

	return e, nil
}

// Dimensions reports the width of the embedding space.
func (e *Embedder) Dimensions() int {
	return e.dim
}

// Embed returns one L2-normalized vector per input text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var vectors [][]float32
	switch e.provider {
	case "google":
		model := e.google.EmbeddingModel(e.googleModel)
		batch := model.NewBatch()
		for _, text := range texts {
			batch.AddContent(genai.Text(text))
		}
		resp, err := model.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, err
		}
		if resp == nil || len(resp.Embeddings) != len(texts) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), len(texts))
		}
		vectors = make([][]float32, len(texts))
		for i, emb := range resp.Embeddings {
			if emb == nil {
				return nil, fmt.Errorf("no embedding returned for input %d", i)
			}
			vectors[i] = emb.Values
		}

	case "openai":
		var err error
		vectors, err = e.openai.embed(ctx, texts)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", e.provider)
	}

	for i, v := range vectors {
		if len(v) != e.dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(v), e.dim)
		}
		Normalize(v)
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) Close() error {
	if e.google != nil {
		return e.google.Close()
	}
	return nil
}

// Normalize scales v to unit length in place. With unit vectors the dot
// product equals cosine similarity. Zero vectors are left untouched.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
