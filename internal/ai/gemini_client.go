package ai

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"github.com/seehafer/fda-guidance-navigator/internal/telemetry"
)

// ErrProviderUnavailable is returned when the circuit breaker is open and no
// request was attempted.
var ErrProviderUnavailable = errors.New("generation provider unavailable")

type GeminiClient struct {
	apiKey       string
	model        string
	maxTokens    int
	breaker      *gobreaker.CircuitBreaker
	rateLimiter  *rate.Limiter
	tokenCounter *TokenCounter
	client       *genai.Client
	tier         string
	metrics      *telemetry.Metrics
}

type TokenCounter struct {
	mu              sync.Mutex
	limits          RateLimits
	minuteTokens    int
	dailyTokens     int
	minuteRequests  int
	dailyRequests   int
	lastMinuteReset time.Time
	lastDayReset    time.Time
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

func NewGeminiClient(apiKey, model, tier string, maxTokens int, metrics *telemetry.Metrics) (*GeminiClient, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	// Configure rate limits based on tier
	limits := getRateLimits(tier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	// RPM limit with some buffer
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), max(limits.RPM/10, 1))

	return &GeminiClient{
		apiKey:       apiKey,
		model:        model,
		maxTokens:    maxTokens,
		breaker:      breaker,
		rateLimiter:  rateLimiter,
		tokenCounter: &TokenCounter{limits: limits},
		client:       client,
		tier:         tier,
		metrics:      metrics,
	}, nil
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// StreamAnswer generates a completion for prompt and delivers text fragments
// to onText in arrival order. It returns the accumulated text, including
// everything already delivered before a mid-stream error. A non-nil return
// from onText aborts the stream and is returned unchanged.
func (gc *GeminiClient) StreamAnswer(ctx context.Context, prompt string, onText func(fragment string) error) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.stream_answer")
	defer span.End()

	estimatedTokens := estimateTokens(prompt)
	span.SetAttributes(
		attribute.Int("gemini.estimated_tokens", estimatedTokens),
		attribute.String("gemini.model", gc.model),
	)

	if !gc.tokenCounter.CanConsume(estimatedTokens, 1) {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", errors.New("rate limit exceeded: wait before retry")
	}

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", err
	}

	var accumulated string
	_, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.model)
		model.SetTemperature(0.2)
		model.SetMaxOutputTokens(int32(gc.maxTokens))

		iter := model.GenerateContentStream(ctx, genai.Text(prompt))
		totalTokens := 0
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				span.SetAttributes(attribute.Bool("gemini.error", true))
				span.SetAttributes(attribute.String("gemini.error_message", err.Error()))
				return nil, err
			}
			if resp.UsageMetadata != nil {
				totalTokens = int(resp.UsageMetadata.TotalTokenCount)
			}
			for _, candidate := range resp.Candidates {
				if candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					text, ok := part.(genai.Text)
					if !ok || len(text) == 0 {
						continue
					}
					accumulated += string(text)
					if err := onText(string(text)); err != nil {
						return nil, err
					}
				}
			}
		}
		if totalTokens == 0 {
			totalTokens = estimateTokens(accumulated)
		}
		gc.tokenCounter.RecordUsage(totalTokens, 1)
		if gc.metrics != nil {
			gc.metrics.RecordTokensUsed(int64(totalTokens), gc.model)
		}
		span.SetAttributes(attribute.Int("gemini.actual_tokens", totalTokens))
		return nil, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return accumulated, ErrProviderUnavailable
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return accumulated, err
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return accumulated, nil
}

func (tc *TokenCounter) CanConsume(tokens, requests int) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := time.Now()

	// Reset counters if time windows expired
	if now.Sub(tc.lastMinuteReset) >= time.Minute {
		tc.minuteTokens = 0
		tc.minuteRequests = 0
		tc.lastMinuteReset = now
	}

	if now.Sub(tc.lastDayReset) >= 24*time.Hour {
		tc.dailyTokens = 0
		tc.dailyRequests = 0
		tc.lastDayReset = now
	}

	if tc.minuteRequests+requests > tc.limits.RPM {
		return false
	}
	if tc.minuteTokens+tokens > tc.limits.TPM {
		return false
	}
	if tc.dailyRequests+requests > tc.limits.RPD {
		return false
	}

	return true
}

func (tc *TokenCounter) RecordUsage(tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.minuteTokens += tokens
	tc.minuteRequests += requests
	tc.dailyTokens += tokens
	tc.dailyRequests += requests
}

// Rough estimation: 1 token is about 4 characters for Gemini
func estimateTokens(text string) int {
	estimated := len(text) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

// EstimateTokens is the shared token heuristic used for chunk sizing and
// history budgets. Counts must be consistent between ingestion and retrieval.
func EstimateTokens(text string) int {
	return estimateTokens(text)
}

// Close the client
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
