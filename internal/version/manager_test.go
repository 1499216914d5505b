package version

import (
	"context"
	"errors"
	"testing"
	"time"

	"chariotek.org/internal/auth"
	"chariotek.org/internal/docstore"
	"chariotek.org/internal/tasks"
)

const testPath = "content/homepage"

func newTestManager(t *testing.T, opts ...Option) (*Manager, *tasks.Runner) {
	t.Helper()
	runner := tasks.NewRunner()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	all := append([]Option{WithClock(func() time.Time { return base })}, opts...)
	m, err := NewManager(docstore.NewMemory(), runner, all...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, runner
}

func editor() auth.Actor {
	return auth.Actor{ID: "u-editor", Email: "editor@example.com", Role: auth.RoleEditor, IsActive: true}
}

func admin() auth.Actor {
	return auth.Actor{ID: "u-admin", Email: "admin@example.com", Role: auth.RoleAdmin, IsActive: true}
}

func TestFirstSaveStartsAtVersionOne(t *testing.T) {
	m, runner := newTestManager(t)
	ctx := context.Background()

	res, err := m.SaveContent(ctx, testPath, map[string]any{"title": "Hello"}, SaveOptions{Actor: editor()})
	if err != nil {
		t.Fatalf("SaveContent: %v", err)
	}
	if res.Version != 1 {
		t.Fatalf("version = %d, want 1", res.Version)
	}

	doc, err := m.GetContent(ctx, testPath)
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if doc.Meta.Version != 1 || doc.Meta.Status != StatusDraft {
		t.Fatalf("meta = %+v", doc.Meta)
	}
	if doc.Meta.CreatedBy != "u-editor" || doc.Meta.UpdatedBy != "u-editor" {
		t.Fatalf("attribution = %+v", doc.Meta)
	}

	runner.Wait()
	history, err := m.GetVersionHistory(ctx, testPath, 10)
	if err != nil {
		t.Fatalf("GetVersionHistory: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("first save must not snapshot, got %d entries", len(history))
	}
}

func TestSupersededVersionIsSnapshotted(t *testing.T) {
	m, runner := newTestManager(t)
	ctx := context.Background()

	if _, err := m.SaveContent(ctx, testPath, map[string]any{"title": "one"}, SaveOptions{
		Actor: editor(), ChangeDescription: "initial",
	}); err != nil {
		t.Fatalf("save v1: %v", err)
	}
	if _, err := m.SaveContent(ctx, testPath, map[string]any{"title": "two"}, SaveOptions{
		Actor: admin(), ChangeDescription: "second pass",
	}); err != nil {
		t.Fatalf("save v2: %v", err)
	}
	runner.Wait()

	history, err := m.GetVersionHistory(ctx, testPath, 10)
	if err != nil {
		t.Fatalf("GetVersionHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history = %d entries, want 1", len(history))
	}
	snap := history[0]
	if snap.Version != 1 || snap.ContentSnapshot["title"] != "one" {
		t.Fatalf("snapshot = %+v", snap)
	}
	// the snapshot belongs to the author of version 1, not the superseder
	if snap.CreatedBy != "u-editor" || snap.ChangeDescription != "initial" {
		t.Fatalf("snapshot attribution = %+v", snap)
	}
}

func TestStaleExpectedVersionAborts(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.SaveContent(ctx, testPath, map[string]any{"title": "one"}, SaveOptions{Actor: editor()}); err != nil {
		t.Fatalf("save v1: %v", err)
	}

	stale := 0
	_, err := m.SaveContent(ctx, testPath, map[string]any{"title": "clobber"}, SaveOptions{
		Actor: editor(), ExpectedVersion: &stale,
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Expected != 0 || conflict.Actual != 1 {
		t.Fatalf("conflict = %+v", conflict)
	}

	doc, err := m.GetContent(ctx, testPath)
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if doc.Meta.Version != 1 || doc.Content["title"] != "one" {
		t.Fatalf("document changed despite conflict: %+v", doc)
	}
}

func TestPublishAndStatusTransitions(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.SaveContent(ctx, testPath, map[string]any{"title": "one"}, SaveOptions{
		Actor: admin(), Publish: true,
	}); err != nil {
		t.Fatalf("publish save: %v", err)
	}
	doc, _ := m.GetContent(ctx, testPath)
	if doc.Meta.Status != StatusPublished || doc.Meta.PublishedBy != "u-admin" || doc.Meta.PublishedAt == nil {
		t.Fatalf("publish meta = %+v", doc.Meta)
	}

	// a plain update keeps the published state
	if _, err := m.SaveContent(ctx, testPath, map[string]any{"title": "two"}, SaveOptions{Actor: editor()}); err != nil {
		t.Fatalf("update: %v", err)
	}
	doc, _ = m.GetContent(ctx, testPath)
	if doc.Meta.Status != StatusPublished || doc.Meta.PublishedBy != "u-admin" {
		t.Fatalf("update lost published state: %+v", doc.Meta)
	}

	// an explicit status override reverts to draft
	draft := StatusDraft
	if _, err := m.SaveContent(ctx, testPath, doc.Content, SaveOptions{Actor: admin(), Status: &draft}); err != nil {
		t.Fatalf("unpublish save: %v", err)
	}
	doc, _ = m.GetContent(ctx, testPath)
	if doc.Meta.Status != StatusDraft {
		t.Fatalf("status override ignored: %+v", doc.Meta)
	}
}

func TestRollbackRestoresSnapshotAsNewVersion(t *testing.T) {
	m, runner := newTestManager(t)
	ctx := context.Background()

	saves := []string{"one", "two", "three"}
	for _, title := range saves {
		if _, err := m.SaveContent(ctx, testPath, map[string]any{"title": title}, SaveOptions{Actor: editor()}); err != nil {
			t.Fatalf("save %q: %v", title, err)
		}
	}
	runner.Wait()

	res, err := m.RollbackToVersion(ctx, testPath, 1, admin())
	if err != nil {
		t.Fatalf("RollbackToVersion: %v", err)
	}
	if res.Version != 4 || res.RestoredVersion != 1 {
		t.Fatalf("rollback result = %+v", res)
	}
	if res.Previous["title"] != "three" || res.Restored["title"] != "one" {
		t.Fatalf("rollback content = %+v", res)
	}

	doc, _ := m.GetContent(ctx, testPath)
	if doc.Content["title"] != "one" || doc.Meta.Version != 4 {
		t.Fatalf("live doc after rollback = %+v", doc)
	}
	if doc.Meta.ChangeDescription != "rollback to version 1" {
		t.Fatalf("change description = %q", doc.Meta.ChangeDescription)
	}

	runner.Wait()
	snap, err := m.GetVersion(ctx, testPath, 3)
	if err != nil {
		t.Fatalf("GetVersion(3): %v", err)
	}
	if !snap.IsRollback || snap.RolledBackFrom != 1 {
		t.Fatalf("pre-rollback snapshot = %+v", snap)
	}
}

func TestRollbackToMissingVersion(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	if _, err := m.SaveContent(ctx, testPath, map[string]any{"title": "one"}, SaveOptions{Actor: editor()}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := m.RollbackToVersion(ctx, testPath, 7, admin()); !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("rollback to missing version: %v", err)
	}
}

func TestRetentionPrunesOldSnapshots(t *testing.T) {
	m, runner := newTestManager(t, WithRetention(3))
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if _, err := m.SaveContent(ctx, testPath, map[string]any{"n": i}, SaveOptions{Actor: editor()}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		// serialize each prune pass so deletes cannot race the next snapshot
		runner.Wait()
	}

	history, err := m.GetVersionHistory(ctx, testPath, 100)
	if err != nil {
		t.Fatalf("GetVersionHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history = %d entries, want 3", len(history))
	}
	// newest-first: versions 7, 6, 5 survive
	for i, want := range []int{7, 6, 5} {
		if history[i].Version != want {
			t.Fatalf("history[%d].Version = %d, want %d", i, history[i].Version, want)
		}
	}
}

func TestHardDeleteKeepsHistory(t *testing.T) {
	m, runner := newTestManager(t)
	ctx := context.Background()

	for _, title := range []string{"one", "two"} {
		if _, err := m.SaveContent(ctx, testPath, map[string]any{"title": title}, SaveOptions{Actor: editor()}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	runner.Wait()

	if err := m.HardDelete(ctx, testPath); err != nil {
		t.Fatalf("HardDelete: %v", err)
	}
	if _, err := m.GetContent(ctx, testPath); !errors.Is(err, ErrNotFound) {
		t.Fatalf("live doc survived hard delete: %v", err)
	}
	history, err := m.GetVersionHistory(ctx, testPath, 10)
	if err != nil {
		t.Fatalf("GetVersionHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history after hard delete = %d entries", len(history))
	}

	if err := m.HardDelete(ctx, testPath); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second hard delete: %v", err)
	}
}

func TestCompareVersions(t *testing.T) {
	m, runner := newTestManager(t)
	ctx := context.Background()

	if _, err := m.SaveContent(ctx, testPath, map[string]any{"title": "one", "gone": "x"}, SaveOptions{Actor: editor()}); err != nil {
		t.Fatalf("save v1: %v", err)
	}
	if _, err := m.SaveContent(ctx, testPath, map[string]any{"title": "two", "fresh": "y"}, SaveOptions{Actor: editor()}); err != nil {
		t.Fatalf("save v2: %v", err)
	}
	if _, err := m.SaveContent(ctx, testPath, map[string]any{"title": "two", "fresh": "y"}, SaveOptions{Actor: editor()}); err != nil {
		t.Fatalf("save v3: %v", err)
	}
	runner.Wait()

	cmp, err := m.CompareVersions(ctx, testPath, 1, 2)
	if err != nil {
		t.Fatalf("CompareVersions: %v", err)
	}
	if cmp.Equal {
		t.Fatal("versions 1 and 2 should differ")
	}
	if len(cmp.ChangedFields) != 1 || cmp.ChangedFields[0] != "title" {
		t.Fatalf("changed = %v", cmp.ChangedFields)
	}
	if len(cmp.RemovedFields) != 1 || cmp.RemovedFields[0] != "gone" {
		t.Fatalf("removed = %v", cmp.RemovedFields)
	}
	if len(cmp.AddedFields) != 1 || cmp.AddedFields[0] != "fresh" {
		t.Fatalf("added = %v", cmp.AddedFields)
	}
}
