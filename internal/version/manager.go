package version

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"chariotek.org/internal/auth"
	"chariotek.org/internal/docstore"
	"chariotek.org/internal/ids"
	"chariotek.org/internal/obs"
	"chariotek.org/internal/tasks"
)

const (
	versionsSuffix = "/_versions"

	// defaultRetention caps snapshot history per document; older entries
	// are pruned by a fire-and-forget task after each save.
	defaultRetention = 50
)

// Manager is the transactional versioning engine: optimistic-locked saves,
// pre-image snapshots, rollback, and read-only history queries.
type Manager struct {
	store     docstore.Store
	runner    *tasks.Runner
	now       func() time.Time
	retention int
}

// Option configures Manager.
type Option func(*Manager)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithRetention overrides the snapshot retention cap.
func WithRetention(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.retention = n
		}
	}
}

// NewManager constructs a Manager.
func NewManager(store docstore.Store, runner *tasks.Runner, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("version: store is required")
	}
	if runner == nil {
		return nil, errors.New("version: task runner is required")
	}
	m := &Manager{
		store:     store,
		runner:    runner,
		now:       time.Now,
		retention: defaultRetention,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// SaveOptions shape a save. ExpectedVersion, when set, arms the
// optimistic-lock check; Publish transitions the document to published.
type SaveOptions struct {
	ExpectedVersion   *int
	Publish           bool
	Actor             auth.Actor
	ChangeDescription string

	// Status, when set, forces the lifecycle state (soft delete archives,
	// unpublish reverts to draft). Publish wins over Status.
	Status *Status
}

// SaveResult reports the outcome of a successful save.
type SaveResult struct {
	Version int `json:"version"`
}

// SaveContent writes content at path as a full replacement, bumping the
// version by exactly one. When ExpectedVersion is armed and stale the
// transaction aborts with *ConflictError and the document is untouched.
// The superseded version's pre-image is snapshotted after commit; snapshot
// and pruning failures are logged out-of-band, never surfaced.
func (m *Manager) SaveContent(ctx context.Context, path string, content map[string]any, opts SaveOptions) (SaveResult, error) {
	if path == "" {
		return SaveResult{}, errors.New("version: path is required")
	}
	now := m.now().UTC()

	var prev *Document
	var newDoc Document

	err := m.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		prev = nil
		currentVersion := 0
		raw, err := tx.Get(path)
		switch {
		case err == nil:
			doc, err := decodeDocument(raw)
			if err != nil {
				return fmt.Errorf("version: decode %s: %w", path, err)
			}
			prev = &doc
			currentVersion = doc.Meta.Version
		case errors.Is(err, docstore.ErrNotFound):
			// fresh path, currentVersion stays 0
		default:
			return err
		}

		if opts.ExpectedVersion != nil && *opts.ExpectedVersion != currentVersion {
			return &ConflictError{Path: path, Expected: *opts.ExpectedVersion, Actual: currentVersion}
		}

		newDoc = buildNext(prev, content, opts, now, currentVersion+1)
		raw, err = encode(newDoc)
		if err != nil {
			return err
		}
		return tx.Set(path, raw)
	})
	if err != nil {
		err = translateStoreConflict(path, opts.ExpectedVersion, err)
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			obs.VersionConflicts.Inc()
		}
		return SaveResult{}, err
	}

	// Snapshot the pre-image outside the transaction, attributed to the
	// author of the superseded version.
	if prev != nil {
		m.snapshotPreImage(ctx, path, *prev, false, 0)
	}
	m.schedulePrune(path)

	return SaveResult{Version: newDoc.Meta.Version}, nil
}

func buildNext(prev *Document, content map[string]any, opts SaveOptions, now time.Time, newVersion int) Document {
	doc := Document{
		Content: content,
		Meta: Meta{
			Version:        newVersion,
			Status:         StatusDraft,
			CreatedAt:      now,
			CreatedBy:      opts.Actor.ID,
			UpdatedAt:      now,
			UpdatedBy:      opts.Actor.ID,
			UpdatedByEmail: opts.Actor.Email,

			ChangeDescription: opts.ChangeDescription,
		},
	}
	if prev != nil {
		doc.Meta.Status = prev.Meta.Status
		doc.Meta.CreatedAt = prev.Meta.CreatedAt
		doc.Meta.CreatedBy = prev.Meta.CreatedBy
		doc.Meta.PublishedAt = prev.Meta.PublishedAt
		doc.Meta.PublishedBy = prev.Meta.PublishedBy
	}
	if opts.Status != nil {
		doc.Meta.Status = *opts.Status
	}
	if opts.Publish {
		doc.Meta.Status = StatusPublished
		published := now
		doc.Meta.PublishedAt = &published
		doc.Meta.PublishedBy = opts.Actor.ID
	}
	return doc
}

// RollbackResult reports a successful rollback.
type RollbackResult struct {
	Version         int `json:"version"`
	RestoredVersion int `json:"restoredVersion"`

	// Previous and Restored carry the before/after content for auditing.
	Previous map[string]any `json:"-"`
	Restored map[string]any `json:"-"`
}

// RollbackToVersion replaces live content with the snapshot stored for
// targetVersion, bumping the version. History is never deleted: both the
// discarded and the restored states remain queryable.
func (m *Manager) RollbackToVersion(ctx context.Context, path string, targetVersion int, actor auth.Actor) (RollbackResult, error) {
	snap, err := m.GetVersion(ctx, path, targetVersion)
	if err != nil {
		return RollbackResult{}, err
	}
	now := m.now().UTC()

	var prev Document
	var newDoc Document

	err = m.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		raw, err := tx.Get(path)
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		doc, err := decodeDocument(raw)
		if err != nil {
			return fmt.Errorf("version: decode %s: %w", path, err)
		}
		prev = doc

		newDoc = doc
		newDoc.Content = snap.ContentSnapshot
		newDoc.Meta.Version = doc.Meta.Version + 1
		newDoc.Meta.UpdatedAt = now
		newDoc.Meta.UpdatedBy = actor.ID
		newDoc.Meta.UpdatedByEmail = actor.Email
		newDoc.Meta.ChangeDescription = fmt.Sprintf("rollback to version %d", targetVersion)

		raw, err = encode(newDoc)
		if err != nil {
			return err
		}
		return tx.Set(path, raw)
	})
	if err != nil {
		return RollbackResult{}, translateStoreConflict(path, nil, err)
	}

	m.snapshotPreImage(ctx, path, prev, true, targetVersion)
	m.schedulePrune(path)
	obs.Rollbacks.Inc()

	return RollbackResult{
		Version:         newDoc.Meta.Version,
		RestoredVersion: targetVersion,
		Previous:        prev.Content,
		Restored:        snap.ContentSnapshot,
	}, nil
}

// GetContent returns the live document at path.
func (m *Manager) GetContent(ctx context.Context, path string) (Document, error) {
	raw, err := m.store.Get(ctx, path)
	if errors.Is(err, docstore.ErrNotFound) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return decodeDocument(raw)
}

// HardDelete physically removes the live document. Version history remains.
func (m *Manager) HardDelete(ctx context.Context, path string) error {
	return m.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		if _, err := tx.Get(path); errors.Is(err, docstore.ErrNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		return tx.Delete(path)
	})
}

// GetVersionHistory returns snapshots for path, newest version first.
func (m *Manager) GetVersionHistory(ctx context.Context, path string, limit int) ([]Snapshot, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := m.store.QueryCollection(ctx, path+versionsSuffix, docstore.Query{
		OrderBy:      "version",
		OrderNumeric: true,
		Desc:         true,
		Limit:        limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(rows))
	for _, r := range rows {
		snap, err := decodeSnapshot(r.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// GetVersion returns the snapshot stored for version n at path.
func (m *Manager) GetVersion(ctx context.Context, path string, n int) (Snapshot, error) {
	rows, err := m.store.QueryCollection(ctx, path+versionsSuffix, docstore.Query{
		Filters: []docstore.Filter{{Field: "version", Value: strconv.Itoa(n)}},
		Limit:   1,
	})
	if err != nil {
		return Snapshot{}, err
	}
	if len(rows) == 0 {
		return Snapshot{}, ErrVersionNotFound
	}
	return decodeSnapshot(rows[0].Value)
}

// Comparison describes top-level content differences between two versions.
type Comparison struct {
	Path          string   `json:"path"`
	A             Snapshot `json:"a"`
	B             Snapshot `json:"b"`
	Equal         bool     `json:"equal"`
	ChangedFields []string `json:"changedFields,omitempty"`
	AddedFields   []string `json:"addedFields,omitempty"`
	RemovedFields []string `json:"removedFields,omitempty"`
}

// CompareVersions diffs the snapshots stored for versions a and b.
func (m *Manager) CompareVersions(ctx context.Context, path string, a, b int) (Comparison, error) {
	snapA, err := m.GetVersion(ctx, path, a)
	if err != nil {
		return Comparison{}, err
	}
	snapB, err := m.GetVersion(ctx, path, b)
	if err != nil {
		return Comparison{}, err
	}
	cmp := Comparison{Path: path, A: snapA, B: snapB}
	for key, av := range snapA.ContentSnapshot {
		bv, ok := snapB.ContentSnapshot[key]
		if !ok {
			cmp.RemovedFields = append(cmp.RemovedFields, key)
			continue
		}
		if fmt.Sprintf("%v", av) != fmt.Sprintf("%v", bv) {
			cmp.ChangedFields = append(cmp.ChangedFields, key)
		}
	}
	for key := range snapB.ContentSnapshot {
		if _, ok := snapA.ContentSnapshot[key]; !ok {
			cmp.AddedFields = append(cmp.AddedFields, key)
		}
	}
	cmp.Equal = len(cmp.ChangedFields) == 0 && len(cmp.AddedFields) == 0 && len(cmp.RemovedFields) == 0
	return cmp, nil
}

// translateStoreConflict maps the store's abort-on-conflict primitive onto
// ConflictError so store-specific errors never leak upward. The actual
// version is unknown when the store itself aborted; callers re-fetch.
func translateStoreConflict(path string, expected *int, err error) error {
	if !errors.Is(err, docstore.ErrConflict) {
		return err
	}
	exp := 0
	if expected != nil {
		exp = *expected
	}
	return &ConflictError{Path: path, Expected: exp, Actual: -1}
}

// snapshotPreImage persists the superseded document's content under its own
// version number. Failures are logged out-of-band; the committed save is
// never unwound.
func (m *Manager) snapshotPreImage(ctx context.Context, path string, pre Document, isRollback bool, rolledBackFrom int) {
	snap := Snapshot{
		VersionID:         ids.New(),
		Version:           pre.Meta.Version,
		ContentSnapshot:   pre.Content,
		CreatedAt:         pre.Meta.UpdatedAt,
		CreatedBy:         pre.Meta.UpdatedBy,
		CreatedByEmail:    pre.Meta.UpdatedByEmail,
		ChangeDescription: pre.Meta.ChangeDescription,
		IsRollback:        isRollback,
		RolledBackFrom:    rolledBackFrom,
	}
	raw, err := encode(snap)
	if err == nil {
		_, err = m.store.AddToCollection(ctx, path+versionsSuffix, raw)
	}
	if err != nil {
		obs.Warn("version snapshot write failed", map[string]any{
			"path":    path,
			"version": pre.Meta.Version,
			"error":   err.Error(),
		})
	}
}

// schedulePrune enforces the retention cap in the background.
func (m *Manager) schedulePrune(path string) {
	collection := path + versionsSuffix
	retention := m.retention
	m.runner.Go("prune:"+collection, func() error {
		rows, err := m.store.QueryCollection(context.Background(), collection, docstore.Query{
			OrderBy:      "version",
			OrderNumeric: true,
			Desc:         true,
		})
		if err != nil {
			return err
		}
		if len(rows) <= retention {
			return nil
		}
		for _, row := range rows[retention:] {
			if err := m.store.DeleteFromCollection(context.Background(), collection, row.ID); err != nil {
				return err
			}
			obs.SnapshotsPruned.Inc()
		}
		return nil
	})
}
