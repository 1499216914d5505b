package version

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a live document.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Meta is the bookkeeping block stored alongside content under "_meta".
// Version is the sole concurrency token: it starts at 1 and increases by
// exactly one on every successful save.
type Meta struct {
	Version        int        `json:"version"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	CreatedBy      string     `json:"createdBy"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	UpdatedBy      string     `json:"updatedBy"`
	UpdatedByEmail string     `json:"updatedByEmail,omitempty"`
	PublishedAt    *time.Time `json:"publishedAt,omitempty"`
	PublishedBy    string     `json:"publishedBy,omitempty"`

	// ChangeDescription travels with the version it describes so the
	// pre-image snapshot can carry the original author's note.
	ChangeDescription string `json:"changeDescription,omitempty"`
}

// Document is the live record at a document path.
type Document struct {
	Content map[string]any `json:"content"`
	Meta    Meta           `json:"_meta"`
}

// Snapshot is an immutable historical copy of a document's content as of a
// specific version number. Snapshots are attributed to whoever authored that
// version, not to whoever triggered its supersession.
type Snapshot struct {
	VersionID         string         `json:"versionId"`
	Version           int            `json:"version"`
	ContentSnapshot   map[string]any `json:"contentSnapshot"`
	CreatedAt         time.Time      `json:"createdAt"`
	CreatedBy         string         `json:"createdBy"`
	CreatedByEmail    string         `json:"createdByEmail,omitempty"`
	ChangeDescription string         `json:"changeDescription,omitempty"`
	IsRollback        bool           `json:"isRollback"`
	RolledBackFrom    int            `json:"rolledBackFrom,omitempty"`
}

var (
	ErrNotFound        = errors.New("version: document not found")
	ErrVersionNotFound = errors.New("version: version not found")
)

// ConflictError reports a failed compare-and-swap: the expected version no
// longer matches the stored one. The document is left untouched.
type ConflictError struct {
	Path     string
	Expected int
	Actual   int
}

func (e *ConflictError) Error() string {
	if e.Actual < 0 {
		return fmt.Sprintf("version conflict at %s: transaction aborted by a concurrent write", e.Path)
	}
	return fmt.Sprintf("version conflict at %s: expected %d, actual %d", e.Path, e.Expected, e.Actual)
}

// encode/decode shuttle typed values through the schemaless store.

func encode(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeDocument(raw map[string]any) (Document, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func decodeSnapshot(raw map[string]any) (Snapshot, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
