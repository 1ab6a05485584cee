// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embed turns chunk and query text into vectors through an
// embedding provider and writes them back to the store.
package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/HiNala/bio-hack-sub000/internal/apperr"
	"github.com/HiNala/bio-hack-sub000/internal/logger"
	"github.com/HiNala/bio-hack-sub000/internal/metrics"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

const serviceName = "embeddings"

// Provider embeds a batch of texts. Vectors are returned in input order and
// all have Dimensions() entries.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimensions() int
}

// OpenAI is a Provider backed by an OpenAI-compatible embeddings endpoint.
type OpenAI struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	log        *zap.Logger
}

// NewOpenAI creates an OpenAI-compatible provider. A missing API key is a
// ConfigurationError.
func NewOpenAI(cfg types.EmbeddingConfig, timeout time.Duration, log *zap.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, &apperr.ConfigurationError{Service: "embedding provider", Message: "API key is not set (embedding.api_key or LITRAG_EMBEDDING_API_KEY)"}
	}
	if cfg.Dimensions <= 0 {
		return nil, apperr.Validation("embedding.dimensions", "must be positive, got %d", cfg.Dimensions)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &OpenAI{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		log:        logger.OrNop(log),
	}, nil
}

// Model returns the embedding model name.
func (o *OpenAI) Model() string { return string(o.model) }

// Dimensions returns the vector width.
func (o *OpenAI) Dimensions() int { return o.dimensions }

// EmbedBatch implements Provider.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          o.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		Dimensions:     o.dimensions,
	}

	resp, err := o.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, parseAPIError(err)
	}
	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(string(o.model)).Add(float64(resp.Usage.TotalTokens))
	}

	if len(resp.Data) != len(texts) {
		return nil, apperr.External(serviceName, 0,
			fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || out[d.Index] != nil {
			return nil, apperr.External(serviceName, 0, fmt.Errorf("bad embedding index %d", d.Index))
		}
		out[d.Index] = d.Embedding
	}
	o.log.Debug("embedded batch", zap.Int("inputs", len(texts)), zap.Int("tokens", resp.Usage.TotalTokens))
	return out, nil
}

// parseAPIError maps client errors to apperr kinds: 429 becomes a
// RateLimitError, anything else an ExternalAPIError with the status code.
func parseAPIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.External(serviceName, 0, err)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusTooManyRequests {
		return &apperr.RateLimitError{Service: serviceName}
	}
	return apperr.External(serviceName, status, err)
}

// Instrumented records Prometheus request, latency, and error metrics around
// another Provider.
type Instrumented struct {
	next Provider
}

// NewInstrumented wraps next.
func NewInstrumented(next Provider) *Instrumented {
	return &Instrumented{next: next}
}

// Model returns the wrapped provider's model.
func (i *Instrumented) Model() string { return i.next.Model() }

// Dimensions returns the wrapped provider's vector width.
func (i *Instrumented) Dimensions() int { return i.next.Dimensions() }

// EmbedBatch implements Provider.
func (i *Instrumented) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	model := i.next.Model()
	start := time.Now()
	vecs, err := i.next.EmbedBatch(ctx, texts)
	metrics.EmbeddingRequestDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(model, errorType(err)).Inc()
		return nil, err
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(model, "success").Inc()
	return vecs, nil
}

func errorType(err error) string {
	switch {
	case errors.Is(err, apperr.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, apperr.ErrExternalAPI):
		return "api_error"
	default:
		return "other"
	}
}
