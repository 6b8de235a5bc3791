package domain

import "time"

// AccessLevel is the user-chosen visibility of an uploaded file.
type AccessLevel string

const (
	LevelOrganization AccessLevel = "organization"
	LevelPrivate      AccessLevel = "private"
	LevelSelected     AccessLevel = "selected"
)

// AccessRecord governs who may read one file within a container.
// At most one active record exists per (Container, FileName).
type AccessRecord struct {
	ID                  string    `json:"id"`
	Container           string    `json:"container"`
	FileName            string    `json:"fileName"`
	OriginalChannelName string    `json:"originalChannelName"`
	IsOpen              bool      `json:"isOpen"`
	AccessList          []string  `json:"accessList"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Citation ties one [docN] marker in a generated answer back to an
// accessible source document.
type Citation struct {
	Source  string `json:"source"`
	Content string `json:"content"`
	Index   int    `json:"index"`
}

// Answer is the result of a grounded question against a channel.
type Answer struct {
	Question  string     `json:"question"`
	Channel   string     `json:"channel"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Grounded  bool       `json:"grounded"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Chunk is one indexed slice of a document's text.
type Chunk struct {
	ID        string            `json:"id"`
	Container string            `json:"container"`
	FileName  string            `json:"fileName"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
}

// DirectoryUser is a user entry returned by the directory service,
// used to populate the access-selection UI.
type DirectoryUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
