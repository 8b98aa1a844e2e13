package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter    metric.Int64Counter
	RequestDuration   metric.Float64Histogram
	TokensUsed        metric.Int64Counter
	IngestDuration    metric.Float64Histogram
	ChunksIndexed     metric.Int64Counter
	QueriesAnswered   metric.Int64Counter
	RetrievalLatency  metric.Float64Histogram
	StreamsCancelled  metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("fda-guidance-navigator")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"gemini.tokens.used",
		metric.WithDescription("Total Gemini tokens used"),
	)
	if err != nil {
		return nil, err
	}

	ingestDuration, err := meter.Float64Histogram(
		"ingest.duration",
		metric.WithDescription("Document ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	chunksIndexed, err := meter.Int64Counter(
		"ingest.chunks.indexed",
		metric.WithDescription("Total chunks embedded and stored"),
	)
	if err != nil {
		return nil, err
	}

	queriesAnswered, err := meter.Int64Counter(
		"query.answered.total",
		metric.WithDescription("Total answered questions"),
	)
	if err != nil {
		return nil, err
	}

	retrievalLatency, err := meter.Float64Histogram(
		"retrieval.duration",
		metric.WithDescription("Vector retrieval duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	streamsCancelled, err := meter.Int64Counter(
		"query.streams.cancelled",
		metric.WithDescription("Streams cut short by client disconnect"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:   requestCounter,
		RequestDuration:  requestDuration,
		TokensUsed:       tokensUsed,
		IngestDuration:   ingestDuration,
		ChunksIndexed:    chunksIndexed,
		QueriesAnswered:  queriesAnswered,
		RetrievalLatency: retrievalLatency,
		StreamsCancelled: streamsCancelled,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordTokensUsed records Gemini token usage
func (m *Metrics) RecordTokensUsed(tokens int64, model string) {
	attrs := []attribute.KeyValue{
		attribute.String("gemini.model", model),
	}

	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
}

// RecordIngest records one ingestion run
func (m *Metrics) RecordIngest(duration float64, outcome string, chunks int64) {
	attrs := []attribute.KeyValue{
		attribute.String("ingest.outcome", outcome),
	}

	m.IngestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
	if chunks > 0 {
		m.ChunksIndexed.Add(context.Background(), chunks, metric.WithAttributes(attrs...))
	}
}

// RecordQuery records one answered or failed question
func (m *Metrics) RecordQuery(outcome string, retrievalSeconds float64) {
	attrs := []attribute.KeyValue{
		attribute.String("query.outcome", outcome),
	}

	m.QueriesAnswered.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RetrievalLatency.Record(context.Background(), retrievalSeconds, metric.WithAttributes(attrs...))
}

// RecordStreamCancelled records a client disconnect mid-stream
func (m *Metrics) RecordStreamCancelled() {
	m.StreamsCancelled.Add(context.Background(), 1)
}
