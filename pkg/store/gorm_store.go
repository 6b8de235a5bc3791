package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"docchatai/internal/util"
	"docchatai/pkg/domain"
)

const migrateLockID int64 = 48112031

const (
	defaultEmbeddingDim      = 768
	canonicalEmbeddingDimEnv = "DOCCHAT_EMBEDDING_DIM"

	// Display name of the channel every user can read.
	defaultChannelName = "General"
)

type GormStoreOptions struct {
	EmbeddingDim   int
	DefaultChannel string
}

type GormStoreOption func(*GormStoreOptions)

// WithEmbeddingDim sets the canonical embedding dimension used by storage.
func WithEmbeddingDim(dim int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.EmbeddingDim = dim
	}
}

// WithDefaultChannel sets the display name of the always-visible channel.
func WithDefaultChannel(name string) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.DefaultChannel = name
	}
}

// GormStore implements AccessControlStore and ChunkStore using GORM + Postgres.
type GormStore struct {
	db             *gorm.DB
	embeddingDim   int
	defaultChannel string
	upsertLocks    keyedMutex
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	embeddingDim, err := resolveEmbeddingDim(opts.EmbeddingDim)
	if err != nil {
		return nil, err
	}
	defaultChannel := strings.TrimSpace(opts.DefaultChannel)
	if defaultChannel == "" {
		defaultChannel = defaultChannelName
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.AutoMigrate(&AccessRecordModel{}, &ChunkModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(fmt.Sprintf(`
			DO $$
			BEGIN
			IF EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'chunk_models' AND column_name = 'embedding'
			) THEN
				ALTER TABLE chunk_models ALTER COLUMN embedding TYPE vector(%d);
			END IF;
			END $$;
		`, embeddingDim)).Error; err != nil {
			return fmt.Errorf("alter chunk embedding type: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, embeddingDim: embeddingDim, defaultChannel: defaultChannel}, nil
}

func resolveEmbeddingDim(configValue int) (int, error) {
	if configValue > 0 {
		return configValue, nil
	}
	raw := strings.TrimSpace(os.Getenv(canonicalEmbeddingDimEnv))
	if raw == "" {
		return defaultEmbeddingDim, nil
	}
	dim, err := strconv.Atoi(raw)
	if err != nil || dim <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", canonicalEmbeddingDimEnv, raw)
	}
	return dim, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// keyedMutex hands out one mutex per document key so concurrent upserts for
// the same document serialize without blocking unrelated documents.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	return lock
}

func documentKey(container, fileName string) string {
	return container + "/" + fileName
}

// Upsert creates or replaces the access record for a document.
func (s *GormStore) Upsert(container, fileName, originalChannelName string, level domain.AccessLevel, users []string) error {
	container = strings.TrimSpace(container)
	fileName = strings.TrimSpace(fileName)
	if container == "" || fileName == "" {
		return ErrInvalidDocumentKey
	}
	isOpen := level == domain.LevelOrganization
	incoming := normalizeUsers(users)

	lock := s.upsertLocks.get(documentKey(container, fileName))
	lock.Lock()
	defer lock.Unlock()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing AccessRecordModel
		found := true
		if err := tx.Where("container = ? AND file_name = ?", container, fileName).
			First(&existing).Error; err != nil {
			if err != gorm.ErrRecordNotFound {
				return err
			}
			found = false
		}
		accessList := incoming
		createdAt := time.Now().UTC()
		if found {
			createdAt = existing.CreatedAt
			if !existing.IsOpen && !isOpen {
				accessList = mergeAccessLists(splitAccessList(existing.AccessList), incoming)
			}
			if err := tx.Delete(&AccessRecordModel{},
				"container = ? AND file_name = ?", container, fileName).Error; err != nil {
				return err
			}
		}
		model := AccessRecordModel{
			ID:                  util.NewID(),
			Container:           container,
			FileName:            fileName,
			OriginalChannelName: strings.TrimSpace(originalChannelName),
			IsOpen:              isOpen,
			AccessList:          joinAccessList(accessList),
			CreatedAt:           createdAt,
			UpdatedAt:           time.Now().UTC(),
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return &StorageUnavailableError{Op: "upsert access record", Err: err}
	}
	return nil
}

// Get returns the access record for a document. A missing record yields a
// closed default record with ok=false and no error.
func (s *GormStore) Get(container, fileName string) (domain.AccessRecord, bool, error) {
	container = strings.TrimSpace(container)
	fileName = strings.TrimSpace(fileName)
	if container == "" || fileName == "" {
		return domain.AccessRecord{}, false, ErrInvalidDocumentKey
	}
	var model AccessRecordModel
	if err := s.db.Where("container = ? AND file_name = ?", container, fileName).
		First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return closedRecord(container, fileName), false, nil
		}
		return domain.AccessRecord{}, false, &StorageUnavailableError{Op: "get access record", Err: err}
	}
	return accessRecordFromModel(model), true, nil
}

// Remove deletes the access record for a document. Missing records are fine.
func (s *GormStore) Remove(container, fileName string) error {
	container = strings.TrimSpace(container)
	fileName = strings.TrimSpace(fileName)
	if container == "" || fileName == "" {
		return ErrInvalidDocumentKey
	}
	if err := s.db.Delete(&AccessRecordModel{},
		"container = ? AND file_name = ?", container, fileName).Error; err != nil {
		return &StorageUnavailableError{Op: "remove access record", Err: err}
	}
	return nil
}

// AccessibleContainers lists channel display names the user may read. On a
// backend failure it degrades to the default channel instead of failing the
// whole listing.
func (s *GormStore) AccessibleContainers(userEmail string) ([]string, error) {
	userEmail = strings.TrimSpace(userEmail)
	names := map[string]string{strings.ToLower(s.defaultChannel): s.defaultChannel}

	var models []AccessRecordModel
	if err := s.db.Find(&models).Error; err != nil {
		slog.Warn("access record scan failed, serving default channel only", "error", err)
		return []string{s.defaultChannel}, nil
	}
	for _, model := range models {
		record := accessRecordFromModel(model)
		if !record.IsOpen && !record.Allows(userEmail) {
			continue
		}
		name := strings.TrimSpace(record.OriginalChannelName)
		if name == "" {
			name = record.Container
		}
		if _, ok := names[strings.ToLower(name)]; !ok {
			names[strings.ToLower(name)] = name
		}
	}
	result := make([]string, 0, len(names))
	for _, name := range names {
		result = append(result, name)
	}
	sort.Strings(result)
	return result, nil
}

// ReplaceChunks replaces all chunks for a document.
func (s *GormStore) ReplaceChunks(container, fileName string, chunks []domain.Chunk) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ChunkModel{},
			"container = ? AND file_name = ?", container, fileName).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		models := make([]ChunkModel, 0, len(chunks))
		for _, chunk := range chunks {
			model := chunkToModel(chunk)
			model.Container = container
			model.FileName = fileName
			models = append(models, model)
		}
		return tx.CreateInBatches(&models, 200).Error
	})
}

// SetChunkEmbedding updates the embedding vector for a chunk.
func (s *GormStore) SetChunkEmbedding(id string, embedding []float32) error {
	if err := s.validateEmbeddingDim(embedding); err != nil {
		return err
	}
	return s.db.Model(&ChunkModel{}).Where("id = ?", id).
		Update("embedding", pgvector.NewVector(embedding)).Error
}

// SearchChunks finds similar chunks within a container by cosine distance.
func (s *GormStore) SearchChunks(container string, embedding []float32, limit int) ([]domain.Chunk, error) {
	if limit <= 0 {
		return []domain.Chunk{}, nil
	}
	if err := s.validateEmbeddingDim(embedding); err != nil {
		return nil, err
	}
	vec := pgvector.NewVector(embedding)
	var models []ChunkModel
	if err := s.db.Model(&ChunkModel{}).
		Where("container = ? AND embedding IS NOT NULL", container).
		Order(clause.Expr{SQL: "embedding <=> ?", Vars: []any{vec}}).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, 0, len(models))
	for _, model := range models {
		chunks = append(chunks, chunkFromModel(model))
	}
	return chunks, nil
}

// DeleteChunks removes all chunks for a document.
func (s *GormStore) DeleteChunks(container, fileName string) error {
	return s.db.Delete(&ChunkModel{},
		"container = ? AND file_name = ?", container, fileName).Error
}

func (s *GormStore) validateEmbeddingDim(embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}
	if s.embeddingDim > 0 && len(embedding) != s.embeddingDim {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), s.embeddingDim)
	}
	return nil
}

func closedRecord(container, fileName string) domain.AccessRecord {
	return domain.AccessRecord{
		Container: container,
		FileName:  fileName,
		IsOpen:    false,
	}
}

func accessRecordFromModel(m AccessRecordModel) domain.AccessRecord {
	return domain.AccessRecord{
		ID:                  m.ID,
		Container:           m.Container,
		FileName:            m.FileName,
		OriginalChannelName: m.OriginalChannelName,
		IsOpen:              m.IsOpen,
		AccessList:          splitAccessList(m.AccessList),
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func chunkToModel(chunk domain.Chunk) ChunkModel {
	rawMetadata, _ := json.Marshal(chunk.Metadata)
	return ChunkModel{
		ID:        chunk.ID,
		Container: chunk.Container,
		FileName:  chunk.FileName,
		Content:   chunk.Content,
		Metadata:  rawMetadata,
		CreatedAt: chunk.CreatedAt,
	}
}

func chunkFromModel(m ChunkModel) domain.Chunk {
	var metadata map[string]string
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &metadata)
	}
	return domain.Chunk{
		ID:        m.ID,
		Container: m.Container,
		FileName:  m.FileName,
		Content:   m.Content,
		Metadata:  metadata,
		CreatedAt: m.CreatedAt,
	}
}
