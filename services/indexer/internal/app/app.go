// Package app implements the indexer worker: it consumes index jobs,
// downloads the uploaded object, extracts and chunks its text, embeds the
// chunks, and writes them to the vector store.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"docchatai/internal/util"
	"docchatai/pkg/ai"
	"docchatai/pkg/domain"
	"docchatai/pkg/queue"
	"docchatai/pkg/storage"
	"docchatai/pkg/store"
)

// Job is the externally visible job-status shape.
type Job struct {
	ID           string    `json:"id"`
	Container    string    `json:"container"`
	FileName     string    `json:"fileName"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Config holds runtime configuration.
type Config struct {
	DatabaseURL  string
	EmbeddingDim int

	// Chunks and Objects override the default backends in tests.
	Chunks  store.ChunkStore
	Objects storage.ObjectStore

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	RedisAddr              string
	RedisPassword          string
	QueueName              string
	QueueGroup             string
	QueueConcurrency       int
	QueueMaxRetries        int
	QueueRetryDelaySeconds int

	EmbeddingProvider    string
	EmbeddingBaseURL     string
	EmbeddingModel       string
	EmbeddingBatchSize   int
	EmbeddingConcurrency int
	GeminiAPIKey         string

	ChunkSize    int
	ChunkOverlap int
}

// App processes indexing jobs.
type App struct {
	chunks           store.ChunkStore
	objects          storage.ObjectStore
	embedder         ai.Embedder
	embedDim         int
	queue            *queue.RedisJobQueue
	parser           *parser
	embedBatchSize   int
	embedConcurrency int
}

// New constructs the indexer and starts its queue consumers.
func New(cfg Config) (*App, error) {
	chunks := cfg.Chunks
	if chunks == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		gormStore, err := store.NewGormStore(cfg.DatabaseURL, store.WithEmbeddingDim(cfg.EmbeddingDim))
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		chunks = gormStore
	}
	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
	}
	embedder, dim, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		Stream:     cfg.QueueName,
		Group:      cfg.QueueGroup,
		Consumer:   util.NewID(),
		MaxRetries: cfg.QueueMaxRetries,
		RetryDelay: time.Duration(cfg.QueueRetryDelaySeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	app := &App{
		chunks:           chunks,
		objects:          objects,
		embedder:         embedder,
		embedDim:         dim,
		queue:            q,
		parser:           newParser(cfg.ChunkSize, cfg.ChunkOverlap),
		embedBatchSize:   cfg.EmbeddingBatchSize,
		embedConcurrency: cfg.EmbeddingConcurrency,
	}
	app.queue.Start(context.Background(), cfg.QueueConcurrency, app.process)
	return app, nil
}

func buildEmbedder(cfg Config) (ai.Embedder, int, error) {
	if cfg.EmbeddingModel == "" {
		return nil, 0, fmt.Errorf("embedding model required")
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.EmbeddingProvider))
	if provider == "" {
		provider = "gemini"
	}
	dim := cfg.EmbeddingDim
	switch provider {
	case "ollama":
		if dim <= 0 {
			return nil, 0, fmt.Errorf("embedding dim required for ollama")
		}
		client := ai.NewOllamaClient(cfg.EmbeddingBaseURL)
		return ai.NewOllamaEmbedder(client, cfg.EmbeddingModel, dim), dim, nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, 0, fmt.Errorf("gemini api key required")
		}
		client, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
		if err != nil {
			return nil, 0, err
		}
		if dim <= 0 {
			dim = 768
		}
		return ai.NewGeminiEmbedder(client, cfg.EmbeddingModel), dim, nil
	default:
		return nil, 0, fmt.Errorf("unknown embedding provider: %s", provider)
	}
}

// Enqueue registers a new index job.
func (a *App) Enqueue(container, fileName, storageKey string) (Job, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	status, err := a.queue.Enqueue(ctx, queue.IndexJob{
		Container:  container,
		FileName:   fileName,
		StorageKey: storageKey,
	})
	if err != nil {
		return Job{}, err
	}
	return jobFromStatus(status), nil
}

// GetJob returns a job by ID.
func (a *App) GetJob(id string) (Job, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	status, ok, err := a.queue.GetJob(ctx, id)
	if err != nil || !ok {
		return Job{}, false
	}
	return jobFromStatus(status), true
}

func (a *App) process(ctx context.Context, status queue.JobStatus) error {
	job := status.Job
	slog.Info("indexing document",
		"container", job.Container, "file", job.FileName, "attempt", status.Attempts)

	path, cleanup, err := a.download(ctx, job.Container, job.StorageKey, job.FileName)
	if err != nil {
		return fmt.Errorf("download %s/%s: %w", job.Container, job.StorageKey, err)
	}
	defer cleanup()

	payloads, err := a.parser.parseAndChunk(job.FileName, path)
	if err != nil {
		return fmt.Errorf("parse %s: %w", job.FileName, err)
	}
	if len(payloads) == 0 {
		return fmt.Errorf("no content extracted from %s", job.FileName)
	}

	chunks := make([]domain.Chunk, 0, len(payloads))
	now := time.Now().UTC()
	for _, payload := range payloads {
		metadata := payload.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadata["source"] = job.FileName
		chunks = append(chunks, domain.Chunk{
			ID:        util.NewID(),
			Container: job.Container,
			FileName:  job.FileName,
			Content:   payload.Content,
			Metadata:  metadata,
			CreatedAt: now,
		})
	}
	if err := a.chunks.ReplaceChunks(job.Container, job.FileName, chunks); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	if err := a.embedAndStore(ctx, chunks); err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	slog.Info("document indexed",
		"container", job.Container, "file", job.FileName, "chunks", len(chunks))
	return nil
}

// download copies the object to a temp file so the parsers can seek it.
func (a *App) download(ctx context.Context, container, storageKey, fileName string) (string, func(), error) {
	rc, err := a.objects.Get(ctx, container, storageKey)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "docchat-*"+filepath.Ext(fileName))
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return tmp.Name(), cleanup, nil
}

func (a *App) embedAndStore(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batchSize := a.embedBatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	concurrency := a.embedConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		g.Go(func() error {
			return a.embedBatch(gctx, batch)
		})
	}
	return g.Wait()
}

func (a *App) embedBatch(ctx context.Context, batch []domain.Chunk) error {
	texts := make([]string, 0, len(batch))
	for _, chunk := range batch {
		texts = append(texts, chunk.Content)
	}
	var embeddings [][]float32
	if embedder, ok := a.embedder.(ai.BatchEmbedder); ok && len(texts) > 1 {
		out, err := embedder.EmbedTexts(ctx, texts, "RETRIEVAL_DOCUMENT")
		if err != nil {
			return err
		}
		embeddings = out
	} else {
		for _, text := range texts {
			embedding, err := a.embedder.EmbedText(ctx, text, "RETRIEVAL_DOCUMENT")
			if err != nil {
				return err
			}
			embeddings = append(embeddings, embedding)
		}
	}
	if len(embeddings) != len(batch) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(batch))
	}
	for i, embedding := range embeddings {
		if a.embedDim > 0 && len(embedding) != a.embedDim {
			return fmt.Errorf("embedding dimension mismatch: got %d", len(embedding))
		}
		if err := a.chunks.SetChunkEmbedding(batch[i].ID, embedding); err != nil {
			return err
		}
	}
	return nil
}

func jobFromStatus(status queue.JobStatus) Job {
	return Job{
		ID:           status.ID,
		Container:    status.Job.Container,
		FileName:     status.Job.FileName,
		Status:       status.Status,
		ErrorMessage: status.ErrorMessage,
		Attempts:     status.Attempts,
		CreatedAt:    status.CreatedAt,
		UpdatedAt:    status.UpdatedAt,
	}
}
