package rag

import (
	"context"
	"fmt"
	"strings"

	"docchatai/pkg/ai"
	"docchatai/pkg/domain"
)

const defaultTopK = 8

// RetrievedChunk is one search hit: a document title and a text excerpt.
type RetrievedChunk struct {
	Title   string
	Content string
}

// Retriever answers a free-text query with ranked chunks from one container.
// Implementations must tolerate empty results.
type Retriever interface {
	Search(ctx context.Context, container, query string) ([]RetrievedChunk, error)
}

// ChunkSearcher is the similarity-search slice of the chunk store.
type ChunkSearcher interface {
	SearchChunks(container string, embedding []float32, limit int) ([]domain.Chunk, error)
}

// IndexRetriever embeds the query and runs a vector search over the
// container's indexed chunks.
type IndexRetriever struct {
	embedder ai.Embedder
	index    ChunkSearcher
	topK     int
}

// NewIndexRetriever builds a retriever over the given embedder and index.
func NewIndexRetriever(embedder ai.Embedder, index ChunkSearcher, topK int) *IndexRetriever {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &IndexRetriever{embedder: embedder, index: index, topK: topK}
}

// Search implements Retriever.
func (r *IndexRetriever) Search(ctx context.Context, container, query string) ([]RetrievedChunk, error) {
	embedding, err := r.embedder.EmbedText(ctx, query, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	chunks, err := r.index.SearchChunks(container, embedding, r.topK)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	results := make([]RetrievedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		title := strings.TrimSpace(chunk.FileName)
		if title == "" {
			title = chunk.Metadata["source"]
		}
		results = append(results, RetrievedChunk{Title: title, Content: chunk.Content})
	}
	return results, nil
}
