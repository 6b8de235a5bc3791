package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// GORM models used for persistence.
type AccessRecordModel struct {
	ID                  string    `gorm:"primaryKey"`
	Container           string    `gorm:"not null;uniqueIndex:idx_access_document"`
	FileName            string    `gorm:"not null;uniqueIndex:idx_access_document"`
	OriginalChannelName string    `gorm:"not null"`
	IsOpen              bool      `gorm:"not null"`
	AccessList          string    `gorm:"type:text"`
	CreatedAt           time.Time `gorm:"not null"`
	UpdatedAt           time.Time `gorm:"not null"`
}

type ChunkModel struct {
	ID        string           `gorm:"primaryKey"`
	Container string           `gorm:"not null;index:idx_chunk_document"`
	FileName  string           `gorm:"not null;index:idx_chunk_document"`
	Content   string           `gorm:"type:text;not null"`
	Metadata  datatypes.JSON   `gorm:"type:jsonb"`
	Embedding *pgvector.Vector `gorm:"type:vector(768)"`
	CreatedAt time.Time        `gorm:"not null;index"`
}
