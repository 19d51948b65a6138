// Package gemini provides the concrete Distiller and Embedder
// implementations backed by Google's Gemini models, grounded on
// internal/llm/llm.go's client construction, API-key resolution order, and
// GenerateEmbedding's Matryoshka-dimensionality pattern.
package gemini

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/genai"

	"smartrouter/internal/cache"
	"smartrouter/internal/routererr"
)

const (
	// DefaultModel is the default Gemini model used for distillation.
	DefaultModel = "gemini-2.0-flash"
	// DefaultEmbeddingModel is the default model used for embeddings.
	DefaultEmbeddingModel = "gemini-embedding-001"
	// DefaultEmbeddingDimensions is the Matryoshka output dimension.
	DefaultEmbeddingDimensions = int32(768)
	// DefaultMaxRetries is the number of retries attempted after the first
	// call, matching config.Gemini.MaxRetries' default.
	DefaultMaxRetries = 3
	// defaultRetryBaseDelay is the first backoff delay; it doubles on each
	// subsequent attempt (spec.md §7's exponential-backoff policy).
	defaultRetryBaseDelay = 500 * time.Millisecond
)

// Client wraps a genai.Client and the shared collaborators (cache) used by
// both the Distiller and Embedder implementations. Budget gating lives one
// level up in internal/router, which reserves once per route rather than
// once per upstream call.
type Client struct {
	apiKey         string
	modelName      string
	embeddingModel string
	dims           int32
	timeout        time.Duration
	maxRetries     int
	retryBaseDelay time.Duration

	gClient *genai.Client
	cache   *cache.Cache
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithCache attaches a ContentCache used to serve cached distillations and
// embeddings without a remote call.
func WithCache(c *cache.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithTimeout overrides the per-call timeout (default 30s, spec.md §5).
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// WithEmbeddingDimensions overrides the Matryoshka output dimension.
func WithEmbeddingDimensions(d int32) Option {
	return func(cl *Client) { cl.dims = d }
}

// WithMaxRetries overrides the number of retries attempted after the first
// call fails with a timeout or upstream error (config.Gemini.MaxRetries).
func WithMaxRetries(n int) Option {
	return func(cl *Client) { cl.maxRetries = n }
}

// NewClient constructs a gemini Client. It resolves the API key in order:
// GEMINI_API_KEY, GOOGLE_GEMINI_API_KEY, GOOGLE_AI_API_KEY environment
// variables, then the gemini.api_key viper key — identical to the
// teacher's internal/llm.NewClient resolution order.
func NewClient(modelName, embeddingModel string, opts ...Option) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		if apiKey = os.Getenv("GOOGLE_GEMINI_API_KEY"); apiKey == "" {
			if apiKey = os.Getenv("GOOGLE_AI_API_KEY"); apiKey == "" {
				apiKey = viper.GetString("gemini.api_key")
			}
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required; set GEMINI_API_KEY or gemini.api_key in config")
	}

	if modelName == "" {
		modelName = viper.GetString("gemini.model")
		if modelName == "" {
			modelName = DefaultModel
		}
	}
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}

	ctx := context.Background()
	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	c := &Client{
		apiKey:         apiKey,
		modelName:      modelName,
		embeddingModel: embeddingModel,
		dims:           DefaultEmbeddingDimensions,
		timeout:        30 * time.Second,
		maxRetries:     DefaultMaxRetries,
		retryBaseDelay: defaultRetryBaseDelay,
		gClient:        gClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// generateContent wraps genai's GenerateContent call with the client's
// default model.
func (c *Client) generateContent(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.modelName, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: empty response from model")
	}
	return text, nil
}

// withRetry runs op, a single upstream call scoped to its own per-call
// timeout, up to c.maxRetries additional times with exponential backoff.
// A context deadline on that attempt's callCtx is tagged kindTimeout;
// any other failure is tagged kindUpstream. Grounded on
// internal/summarize/summarizer.go's SummarizeArticle retry loop,
// switched from linear to exponential backoff per spec.md §7.
func (c *Client) withRetry(ctx context.Context, kindTimeout, kindUpstream routererr.Kind, op func(callCtx context.Context) error) error {
	delay := c.retryBaseDelay
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := op(callCtx)
		timedOut := callCtx.Err() != nil
		cancel()

		if err == nil {
			return nil
		}
		if timedOut {
			lastErr = routererr.Wrap(kindTimeout, "call timed out", err)
		} else {
			lastErr = routererr.Wrap(kindUpstream, "upstream call failed", err)
		}
		if attempt == c.maxRetries {
			return lastErr
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return lastErr
		}
		delay *= 2
	}
	return lastErr
}

// Close releases the underlying genai client resources, if applicable.
func (c *Client) Close() {}
