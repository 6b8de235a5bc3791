// Package store provides persistence for access-control records and indexed
// document chunks.
package store

import "docchatai/pkg/domain"

// AccessControlStore persists per-document access records. Implementations
// must keep at most one record per (container, fileName) pair.
type AccessControlStore interface {
	// Upsert creates or replaces the access record for a document. When the
	// existing record is restricted and the new level is not organization-wide,
	// previously listed users are preserved in the merged access list.
	Upsert(container, fileName, originalChannelName string, level domain.AccessLevel, users []string) error

	// Get returns the access record for a document. When no record exists it
	// returns a closed default record and ok=false with a nil error; errors are
	// reserved for backend failures.
	Get(container, fileName string) (record domain.AccessRecord, ok bool, err error)

	// Remove deletes the access record for a document. Removing a missing
	// record is not an error.
	Remove(container, fileName string) error

	// AccessibleContainers returns the deduplicated, lexicographically sorted
	// display names of channels the user may read. The default channel is
	// always included, even when the backend is unreachable.
	AccessibleContainers(userEmail string) ([]string, error)
}

// ChunkStore persists indexed document chunks and serves similarity search.
type ChunkStore interface {
	// ReplaceChunks atomically swaps the stored chunks for a document.
	ReplaceChunks(container, fileName string, chunks []domain.Chunk) error

	// SetChunkEmbedding attaches an embedding vector to a stored chunk.
	SetChunkEmbedding(id string, embedding []float32) error

	// SearchChunks returns up to limit chunks from the container ordered by
	// cosine distance to the query embedding.
	SearchChunks(container string, embedding []float32, limit int) ([]domain.Chunk, error)

	// DeleteChunks removes all chunks for a document.
	DeleteChunks(container, fileName string) error
}
