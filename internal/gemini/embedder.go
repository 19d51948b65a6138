package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/genai"

	"smartrouter/internal/core"
	"smartrouter/internal/embedder"
	"smartrouter/internal/routererr"
)

// embedCacheEntry is the on-disk shape cached under a content hash, storing
// both vectors together so a single cache lookup serves Embed.
type embedCacheEntry struct {
	TitleVector   []float64 `json:"title_vector"`
	ContextVector []float64 `json:"context_vector"`
	Model         string    `json:"model"`
}

// Embed implements embedder.Embedder, grounded on internal/llm.GenerateEmbedding's
// Matryoshka OutputDimensionality configuration and float32->float64 conversion.
func (c *Client) Embed(ctx context.Context, concept *core.DistilledConcept) (*core.VectorEmbeddings, error) {
	if c.cache != nil {
		if raw, ok := c.cache.Get(cacheKeyFor(concept.ContentHash)); ok {
			var cached embedCacheEntry
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &core.VectorEmbeddings{
					TitleVector:   cached.TitleVector,
					ContextVector: cached.ContextVector,
					Dims:          len(cached.TitleVector),
					ContentHash:   concept.ContentHash,
					Model:         cached.Model,
					EmbeddedAt:    time.Now().UTC(),
				}, nil
			}
		}
	}

	contextText := concept.Title + "\n\n" + concept.Summary

	var titleVector, contextVector []float64
	if err := c.withRetry(ctx, routererr.KindEmbedUpstream, routererr.KindEmbedUpstream, func(callCtx context.Context) error {
		var genErr error
		titleVector, genErr = c.generateEmbedding(callCtx, concept.Title)
		return genErr
	}); err != nil {
		return nil, err
	}
	if err := c.withRetry(ctx, routererr.KindEmbedUpstream, routererr.KindEmbedUpstream, func(callCtx context.Context) error {
		var genErr error
		contextVector, genErr = c.generateEmbedding(callCtx, contextText)
		return genErr
	}); err != nil {
		return nil, err
	}

	embedder.Normalize(titleVector)
	embedder.Normalize(contextVector)

	if c.cache != nil {
		entry := embedCacheEntry{TitleVector: titleVector, ContextVector: contextVector, Model: c.embeddingModel}
		if encoded, err := json.Marshal(entry); err == nil {
			c.cache.Set(cacheKeyFor(concept.ContentHash), encoded, 30*24*time.Hour)
		}
	}

	return &core.VectorEmbeddings{
		TitleVector:   titleVector,
		ContextVector: contextVector,
		Dims:          len(titleVector),
		ContentHash:   concept.ContentHash,
		Model:         c.embeddingModel,
		EmbeddedAt:    time.Now().UTC(),
	}, nil
}

func cacheKeyFor(contentHash string) string {
	return "embed:" + contentHash
}

// generateEmbedding issues one EmbedContent call against the caller-scoped
// ctx (withRetry supplies a fresh per-attempt timeout) and returns a plain
// error; classification into Kind values happens once, in withRetry.
func (c *Client) generateEmbedding(ctx context.Context, text string) ([]float64, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: text}},
		Role:  "user",
	}}
	dims := c.dims
	cfg := &genai.EmbedContentConfig{OutputDimensionality: &dims}

	resp, err := c.gClient.Models.EmbedContent(ctx, c.embeddingModel, contents, cfg)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("no embedding values returned from API")
	}

	values := resp.Embeddings[0].Values
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	if int32(len(out)) != dims {
		return nil, fmt.Errorf("embedding dimension %d does not match requested %d", len(out), dims)
	}
	return out, nil
}
