// Package app implements the webapp business logic: channel management,
// document upload and sharing, and access-controlled grounded answering.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"docchatai/internal/util"
	"docchatai/pkg/access"
	"docchatai/pkg/ai"
	"docchatai/pkg/directory"
	"docchatai/pkg/domain"
	"docchatai/pkg/queue"
	"docchatai/pkg/rag"
	"docchatai/pkg/storage"
	"docchatai/pkg/store"
)

const (
	defaultChannelName = "General"
	defaultTopK        = 8
	defaultMaxUploadMB = 50
)

// IndexQueue enqueues document indexing jobs.
type IndexQueue interface {
	Enqueue(ctx context.Context, job queue.IndexJob) (queue.JobStatus, error)
}

// UserDirectory looks up users for the access-selection UI.
type UserDirectory interface {
	LookupUsers(ctx context.Context, searchPrefix string, maxResults int) ([]domain.DirectoryUser, error)
}

// Config holds runtime configuration.
type Config struct {
	DatabaseURL  string
	EmbeddingDim int

	// Access, Chunks, Objects, Queue, Generator, Embedder and Directory
	// override the default backends in tests.
	Access    store.AccessControlStore
	Chunks    store.ChunkStore
	Objects   storage.ObjectStore
	Queue     IndexQueue
	Generator ai.TextGenerator
	Embedder  ai.Embedder
	Directory UserDirectory

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	RedisAddr     string
	RedisPassword string
	QueueName     string

	EmbeddingProvider string
	EmbeddingBaseURL  string
	EmbeddingModel    string

	GenerationProvider string
	GenerationBaseURL  string
	GenerationModel    string
	GeminiAPIKey       string
	GenerationAPIKey   string

	DirectoryBaseURL  string
	DirectoryAPIToken string

	DefaultChannel    string
	RetrievalTopK     int
	MaxUploadMB       int
	AllowedExtensions []string
}

// App carries the webapp's collaborators.
type App struct {
	access    store.AccessControlStore
	chunks    store.ChunkStore
	objects   storage.ObjectStore
	queue     IndexQueue
	resolver  *access.Resolver
	answers   *rag.AnswerBuilder
	directory UserDirectory

	defaultChannel string
	maxUploadBytes int64
	allowedExts    map[string]bool
}

// UploadRequest describes one incoming document upload.
type UploadRequest struct {
	Channel       string
	FileName      string
	Content       io.Reader
	Size          int64
	AccessLevel   string
	Users         []string
	UploaderEmail string
}

// UploadResult reports where the document landed and its index job.
type UploadResult struct {
	Channel  string `json:"channel"`
	FileName string `json:"fileName"`
	JobID    string `json:"jobId,omitempty"`
}

// New constructs the webapp application.
func New(cfg Config) (*App, error) {
	accessStore := cfg.Access
	chunks := cfg.Chunks
	if accessStore == nil || chunks == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		gormStore, err := store.NewGormStore(cfg.DatabaseURL,
			store.WithEmbeddingDim(cfg.EmbeddingDim),
			store.WithDefaultChannel(cfg.DefaultChannel))
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		if accessStore == nil {
			accessStore = gormStore
		}
		if chunks == nil {
			chunks = gormStore
		}
	}
	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
	}
	indexQueue := cfg.Queue
	if indexQueue == nil {
		q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.QueueName,
			Consumer: util.NewID(),
		})
		if err != nil {
			return nil, err
		}
		indexQueue = q
	}
	generator := cfg.Generator
	if generator == nil {
		var err error
		generator, err = buildGenerator(cfg)
		if err != nil {
			return nil, err
		}
	}
	embedder := cfg.Embedder
	if embedder == nil {
		var err error
		embedder, err = buildEmbedder(cfg)
		if err != nil {
			return nil, err
		}
	}
	dir := cfg.Directory
	if dir == nil && cfg.DirectoryBaseURL != "" {
		dir = directory.NewClient(cfg.DirectoryBaseURL, cfg.DirectoryAPIToken)
	}

	defaultChannel := strings.TrimSpace(cfg.DefaultChannel)
	if defaultChannel == "" {
		defaultChannel = defaultChannelName
	}
	topK := cfg.RetrievalTopK
	if topK <= 0 {
		topK = defaultTopK
	}
	maxMB := cfg.MaxUploadMB
	if maxMB <= 0 {
		maxMB = defaultMaxUploadMB
	}

	resolver := access.NewResolver(objects, accessStore, slugify(defaultChannel))
	retriever := rag.NewIndexRetriever(embedder, chunks, topK)

	app := &App{
		access:         accessStore,
		chunks:         chunks,
		objects:        objects,
		queue:          indexQueue,
		resolver:       resolver,
		answers:        rag.NewAnswerBuilder(resolver, retriever, generator),
		directory:      dir,
		defaultChannel: defaultChannel,
		maxUploadBytes: int64(maxMB) << 20,
		allowedExts:    normalizeExtensions(cfg.AllowedExtensions),
	}
	app.ensureDefaultChannel()
	return app, nil
}

func buildGenerator(cfg Config) (ai.TextGenerator, error) {
	switch strings.ToLower(cfg.GenerationProvider) {
	case "ollama":
		return ai.NewOllamaGenerator(ai.NewOllamaClient(cfg.GenerationBaseURL), cfg.GenerationModel), nil
	case "openai", "openai-compat":
		return ai.NewOpenAICompatGenerator(cfg.GenerationBaseURL, cfg.GenerationAPIKey, cfg.GenerationModel), nil
	case "", "gemini":
		client, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return ai.NewGeminiGenerator(client, cfg.GenerationModel), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.GenerationProvider)
	}
}

func buildEmbedder(cfg Config) (ai.Embedder, error) {
	switch strings.ToLower(cfg.EmbeddingProvider) {
	case "ollama":
		return ai.NewOllamaEmbedder(ai.NewOllamaClient(cfg.EmbeddingBaseURL), cfg.EmbeddingModel, cfg.EmbeddingDim), nil
	case "", "gemini":
		client, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return ai.NewGeminiEmbedder(client, cfg.EmbeddingModel), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

func (a *App) ensureDefaultChannel() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.objects.EnsureContainer(ctx, slugify(a.defaultChannel)); err != nil {
		slog.Warn("ensure default channel failed", "channel", a.defaultChannel, "error", err)
	}
}

// Channels lists the channels in which the user can read at least the
// channel itself. Storage failures degrade to the public channel.
func (a *App) Channels(userEmail string) ([]string, error) {
	return a.access.AccessibleContainers(userEmail)
}

// CreateChannel provisions the container for a new channel and returns its
// slug.
func (a *App) CreateChannel(ctx context.Context, name string) (string, error) {
	container := slugify(name)
	if container == "" {
		return "", ErrInvalidChannelName
	}
	if err := a.objects.EnsureContainer(ctx, container); err != nil {
		return "", fmt.Errorf("create channel %q: %w", container, err)
	}
	return container, nil
}

// ListFiles returns the documents in the channel the user may read,
// in storage listing order.
func (a *App) ListFiles(ctx context.Context, channel, userEmail string) ([]string, error) {
	container := slugify(channel)
	if container == "" {
		return nil, ErrInvalidChannelName
	}
	return a.resolver.AccessibleDocuments(ctx, container, userEmail)
}

// UploadFile stores the document, seeds its access record, and enqueues an
// index job. A private level always results in an uploader-only list.
func (a *App) UploadFile(ctx context.Context, req UploadRequest) (UploadResult, error) {
	container := slugify(req.Channel)
	if container == "" {
		return UploadResult{}, ErrInvalidChannelName
	}
	name := sanitizeFilename(req.FileName)
	if name == "" {
		return UploadResult{}, ErrInvalidFileName
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !a.allowedExts[ext] {
		return UploadResult{}, fmt.Errorf("%w: %s", ErrUnsupportedFileType, ext)
	}
	if req.Size > a.maxUploadBytes {
		return UploadResult{}, ErrFileTooLarge
	}
	level, users, err := resolveAccessLevel(req.AccessLevel, req.Users, req.UploaderEmail)
	if err != nil {
		return UploadResult{}, err
	}

	if err := a.objects.EnsureContainer(ctx, container); err != nil {
		return UploadResult{}, fmt.Errorf("ensure container: %w", err)
	}
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := a.objects.Put(ctx, container, name, req.Content, req.Size, contentType); err != nil {
		return UploadResult{}, fmt.Errorf("store document: %w", err)
	}

	if err := a.access.Upsert(container, name, strings.TrimSpace(req.Channel), level, users); err != nil {
		// Do not leave an object in place that no record governs.
		if delErr := a.objects.Delete(ctx, container, name); delErr != nil {
			slog.Warn("rollback delete failed", "container", container, "file", name, "error", delErr)
		}
		return UploadResult{}, fmt.Errorf("record access: %w", err)
	}

	status, err := a.queue.Enqueue(ctx, queue.IndexJob{
		Container:  container,
		FileName:   name,
		StorageKey: name,
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("enqueue index job: %w", err)
	}
	slog.Info("document uploaded",
		"container", container, "file", name, "level", level, "job_id", status.ID)
	return UploadResult{Channel: container, FileName: name, JobID: status.ID}, nil
}

// DeleteFile removes the document's blob, chunks, and access record.
func (a *App) DeleteFile(ctx context.Context, channel, fileName string) error {
	container := slugify(channel)
	if container == "" {
		return ErrInvalidChannelName
	}
	name := strings.TrimSpace(fileName)
	if name == "" {
		return ErrInvalidFileName
	}
	if err := a.objects.Delete(ctx, container, name); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := a.chunks.DeleteChunks(container, name); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := a.access.Remove(container, name); err != nil {
		return fmt.Errorf("remove access record: %w", err)
	}
	slog.Info("document deleted", "container", container, "file", name)
	return nil
}

// UpdateAccess replaces or merges the document's access record.
func (a *App) UpdateAccess(channel, fileName, accessLevel string, users []string, actorEmail string) error {
	container := slugify(channel)
	if container == "" {
		return ErrInvalidChannelName
	}
	level, list, err := resolveAccessLevel(accessLevel, users, actorEmail)
	if err != nil {
		return err
	}
	if err := a.access.Upsert(container, strings.TrimSpace(fileName), strings.TrimSpace(channel), level, list); err != nil {
		return fmt.Errorf("update access: %w", err)
	}
	return nil
}

// RemoveAccess deletes the document's access record. Removing an absent
// record is not an error.
func (a *App) RemoveAccess(channel, fileName string) error {
	container := slugify(channel)
	if container == "" {
		return ErrInvalidChannelName
	}
	if err := a.access.Remove(container, strings.TrimSpace(fileName)); err != nil {
		return fmt.Errorf("remove access: %w", err)
	}
	return nil
}

// Ask answers a question against the channel's accessible documents.
func (a *App) Ask(ctx context.Context, channel, question, userEmail string) (domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Answer{}, ErrQuestionRequired
	}
	container := slugify(channel)
	if container == "" {
		container = slugify(a.defaultChannel)
	}
	return a.answers.Answer(ctx, question, container, userEmail), nil
}

// SearchUsers queries the directory for the access-selection UI.
func (a *App) SearchUsers(ctx context.Context, prefix string, limit int) ([]domain.DirectoryUser, error) {
	if a.directory == nil {
		return []domain.DirectoryUser{}, nil
	}
	return a.directory.LookupUsers(ctx, prefix, limit)
}

// resolveAccessLevel validates the level and applies its user-list policy:
// organization ignores users, private keeps only the actor, selected keeps
// the provided users plus the actor.
func resolveAccessLevel(level string, users []string, actorEmail string) (domain.AccessLevel, []string, error) {
	switch domain.AccessLevel(strings.ToLower(strings.TrimSpace(level))) {
	case domain.LevelOrganization:
		return domain.LevelOrganization, nil, nil
	case domain.LevelPrivate:
		return domain.LevelPrivate, []string{actorEmail}, nil
	case domain.LevelSelected:
		return domain.LevelSelected, append(append([]string{}, users...), actorEmail), nil
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidAccessLevel, level)
	}
}
