// Package audit maintains the append-only trail of every attempted
// state-changing operation. Writes are best-effort: a failed append degrades
// to a side-channel warning and never blocks or reverts the operation it
// describes.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chariotek.org/internal/auth"
	"chariotek.org/internal/docstore"
	"chariotek.org/internal/ids"
	"chariotek.org/internal/obs"
)

// Action identifies the kind of operation an entry records.
type Action string

const (
	ActionLogin       Action = "login"
	ActionLogout      Action = "logout"
	ActionLoginFailed Action = "login_failed"

	ActionContentCreate    Action = "content_create"
	ActionContentUpdate    Action = "content_update"
	ActionContentDelete    Action = "content_delete"
	ActionContentPublish   Action = "content_publish"
	ActionContentUnpublish Action = "content_unpublish"
	ActionContentRollback  Action = "content_rollback"

	ActionAdminCreate     Action = "admin_create"
	ActionAdminUpdate     Action = "admin_update"
	ActionAdminDelete     Action = "admin_delete"
	ActionAdminRoleChange Action = "admin_role_change"

	ActionSettingsUpdate Action = "settings_update"
)

const (
	collection = "audit_logs"

	// maxValueChars caps the serialized size of previousValue/newValue
	// independently; larger values are replaced with a truncation stub.
	maxValueChars = 10000
	previewChars  = 500
)

// Entry is one audit record. ID and Timestamp are assigned by the logger.
type Entry struct {
	ID           string         `json:"id"`
	Action       Action         `json:"action"`
	UserID       string         `json:"userId"`
	UserEmail    string         `json:"userEmail,omitempty"`
	UserRole     string         `json:"userRole,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	ResourceType string         `json:"resourceType,omitempty"`
	ResourceID   string         `json:"resourceId,omitempty"`
	ResourcePath string         `json:"resourcePath,omitempty"`
	PreviousVal  any            `json:"previousValue,omitempty"`
	NewVal       any            `json:"newValue,omitempty"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Logger appends entries to the audit collection.
type Logger struct {
	store docstore.Store
	now   func() time.Time
}

// Option configures Logger.
type Option func(*Logger)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Logger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLogger constructs a Logger.
func NewLogger(store docstore.Store, opts ...Option) (*Logger, error) {
	if store == nil {
		return nil, errors.New("audit: store is required")
	}
	l := &Logger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Log constructs the immutable record and appends it. An empty action is
// programmer error and returns immediately; storage failures are returned so
// Record can route them to the side channel.
func (l *Logger) Log(ctx context.Context, entry Entry) error {
	if entry.Action == "" {
		return errors.New("audit: action is required")
	}
	entry.ID = ids.New()
	entry.Timestamp = l.now().UTC()
	entry.PreviousVal = capValue(entry.PreviousVal)
	entry.NewVal = capValue(entry.NewVal)

	raw, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	_, err = l.store.AddToCollection(ctx, collection, raw)
	return err
}

// Record is the best-effort form of Log: append failures are swallowed and
// logged out-of-band so audit unavailability never masks the primary
// operation's outcome.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	if err := l.Log(ctx, entry); err != nil {
		obs.AuditEntries.WithLabelValues("dropped").Inc()
		obs.Warn("audit write failed", map[string]any{
			"action": string(entry.Action),
			"error":  err.Error(),
		})
		return
	}
	obs.AuditEntries.WithLabelValues("written").Inc()
}

// capValue replaces oversized values with a stub carrying the original size
// and a short preview.
func capValue(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"unserializable": true, "error": err.Error()}
	}
	if len(data) <= maxValueChars {
		return v
	}
	return map[string]any{
		"truncated":    true,
		"originalSize": len(data),
		"preview":      string(data[:previewChars]) + "...",
	}
}

// --- convenience constructors -----------------------------------------

// LogLogin records a login attempt; failures become login_failed entries.
func (l *Logger) LogLogin(ctx context.Context, actor auth.Actor, success bool, errMsg string) {
	action := ActionLogin
	if !success {
		action = ActionLoginFailed
	}
	l.Record(ctx, Entry{
		Action:       action,
		UserID:       actor.ID,
		UserEmail:    actor.Email,
		UserRole:     string(actor.Role),
		Success:      success,
		ErrorMessage: errMsg,
	})
}

// LogLogout records a logout.
func (l *Logger) LogLogout(ctx context.Context, actor auth.Actor) {
	l.Record(ctx, Entry{
		Action:    ActionLogout,
		UserID:    actor.ID,
		UserEmail: actor.Email,
		UserRole:  string(actor.Role),
		Success:   true,
	})
}

// LogContentChange records a content mutation attempt (create, update,
// delete, publish, unpublish) with full before/after values.
func (l *Logger) LogContentChange(ctx context.Context, action Action, actor auth.Actor, contentType, path string, prev, next any, success bool, errMsg string) {
	l.Record(ctx, Entry{
		Action:       action,
		UserID:       actor.ID,
		UserEmail:    actor.Email,
		UserRole:     string(actor.Role),
		ResourceType: contentType,
		ResourcePath: path,
		PreviousVal:  prev,
		NewVal:       next,
		Success:      success,
		ErrorMessage: errMsg,
	})
}

// LogContentRollback records a rollback with its version movement.
func (l *Logger) LogContentRollback(ctx context.Context, actor auth.Actor, contentType, path string, prev, next any, fromVersion, toVersion int, success bool, errMsg string) {
	l.Record(ctx, Entry{
		Action:       ActionContentRollback,
		UserID:       actor.ID,
		UserEmail:    actor.Email,
		UserRole:     string(actor.Role),
		ResourceType: contentType,
		ResourcePath: path,
		PreviousVal:  prev,
		NewVal:       next,
		Success:      success,
		ErrorMessage: errMsg,
		Metadata: map[string]any{
			"fromVersion": fromVersion,
			"toVersion":   toVersion,
		},
	})
}

// LogAdminManagement records admin-account administration.
func (l *Logger) LogAdminManagement(ctx context.Context, action Action, actor auth.Actor, targetUserID string, prev, next any, success bool, errMsg string) {
	l.Record(ctx, Entry{
		Action:       action,
		UserID:       actor.ID,
		UserEmail:    actor.Email,
		UserRole:     string(actor.Role),
		ResourceType: "admin_user",
		ResourceID:   targetUserID,
		PreviousVal:  prev,
		NewVal:       next,
		Success:      success,
		ErrorMessage: errMsg,
	})
}

// LogSettingsUpdate records a settings change.
func (l *Logger) LogSettingsUpdate(ctx context.Context, actor auth.Actor, prev, next any, success bool, errMsg string) {
	l.Record(ctx, Entry{
		Action:       ActionSettingsUpdate,
		UserID:       actor.ID,
		UserEmail:    actor.Email,
		UserRole:     string(actor.Role),
		PreviousVal:  prev,
		NewVal:       next,
		Success:      success,
		ErrorMessage: errMsg,
	})
}

// --- encoding ----------------------------------------------------------

// auditTimeFormat keeps timestamps fixed-width so range filters can compare
// the string forms.
const auditTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func encodeEntry(entry Entry) (map[string]any, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	raw["timestamp"] = entry.Timestamp.Format(auditTimeFormat)
	return raw, nil
}

func decodeEntry(raw map[string]any) (Entry, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("audit: decode entry: %w", err)
	}
	return entry, nil
}
