// Package content is the permission-gated facade over the versioning engine,
// the sanitizer, and the audit trail. It is the only entry point external
// collaborators call directly.
package content

import (
	"context"
	"errors"
	"time"

	"chariotek.org/internal/audit"
	"chariotek.org/internal/auth"
	"chariotek.org/internal/obs"
	"chariotek.org/internal/sanitize"
	"chariotek.org/internal/schema"
	"chariotek.org/internal/version"
)

// deletedMarker is merged into content on soft delete so the document stays
// fully versioned and recoverable.
const deletedMarker = "_deleted"

// Service orchestrates permission checks, validation, sanitization,
// versioned writes, and audit logging. Construct one per process and pass it
// by reference; there is no package-level instance.
type Service struct {
	versions *version.Manager
	audit    *audit.Logger
	registry *schema.Registry
	now      func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the facade.
func NewService(versions *version.Manager, auditLog *audit.Logger, registry *schema.Registry, opts ...Option) (*Service, error) {
	if versions == nil || auditLog == nil || registry == nil {
		return nil, errors.New("content: versions, audit, and registry are required")
	}
	s := &Service{
		versions: versions,
		audit:    auditLog,
		registry: registry,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ready guards every operation: an unconstructed service or a missing actor
// fails before any permission check or mutation.
func (s *Service) ready(actor auth.Actor) error {
	if s == nil || s.versions == nil {
		return newError(CodeNotReady, "content service is not initialized")
	}
	if actor.ID == "" {
		return newError(CodeNotReady, "no authenticated actor")
	}
	return nil
}

// guard translates the synchronous permission check into the taxonomy.
func guard(actor auth.Actor, perm auth.Permission) error {
	if err := auth.RequirePermission(&actor, perm); err != nil {
		return &Error{Code: CodeInsufficientPermissions, Message: err.Error()}
	}
	return nil
}

// SaveRequest shapes a content save.
type SaveRequest struct {
	ContentType       string
	Content           map[string]any
	ExpectedVersion   *int
	Publish           bool
	SkipSanitize      bool
	ChangeDescription string
}

// SaveResponse reports a successful save.
type SaveResponse struct {
	Version int `json:"version"`
}

// SaveContent validates, sanitizes, and writes content through the
// versioning engine. The attempt is audited regardless of which step fails.
func (s *Service) SaveContent(ctx context.Context, actor auth.Actor, req SaveRequest) (SaveResponse, error) {
	if err := s.ready(actor); err != nil {
		return SaveResponse{}, err
	}

	def, ok := s.registry.Lookup(req.ContentType)
	if !ok {
		def = schema.Generic(req.ContentType)
	}

	// Previous content is fetched up front so the audit entry can carry
	// full before/after values even when the save fails midway.
	var prevContent map[string]any
	prevVersion := 0
	if doc, err := s.versions.GetContent(ctx, def.Path); err == nil {
		prevContent = doc.Content
		prevVersion = doc.Meta.Version
	}

	action := audit.ActionContentUpdate
	if prevVersion == 0 {
		action = audit.ActionContentCreate
	}
	if req.Publish {
		action = audit.ActionContentPublish
	}

	result, err := s.doSave(ctx, actor, def, req)
	if err != nil {
		obs.ContentSaves.WithLabelValues("error").Inc()
		s.audit.LogContentChange(ctx, action, actor, req.ContentType, def.Path, prevContent, req.Content, false, err.Error())
		return SaveResponse{}, err
	}

	obs.ContentSaves.WithLabelValues("ok").Inc()
	s.audit.LogContentChange(ctx, action, actor, req.ContentType, def.Path, prevContent, result.content, true, "")
	return SaveResponse{Version: result.version}, nil
}

type saveOutcome struct {
	version int
	content map[string]any
}

func (s *Service) doSave(ctx context.Context, actor auth.Actor, def schema.Definition, req SaveRequest) (saveOutcome, error) {
	if err := guard(actor, auth.PermContentUpdate); err != nil {
		return saveOutcome{}, err
	}
	if req.Publish {
		if err := guard(actor, auth.PermContentPublish); err != nil {
			return saveOutcome{}, err
		}
	}

	if fieldErrs := def.Validate(req.Content); len(fieldErrs) > 0 {
		return saveOutcome{}, &Error{
			Code:    CodeValidationError,
			Message: "content failed validation",
			Fields:  fieldErrs,
		}
	}

	cleaned := req.Content
	if !req.SkipSanitize {
		sanitized, ok := sanitize.Object(req.Content, def.SanitizeRules).(map[string]any)
		if !ok {
			return saveOutcome{}, newError(CodeValidationError, "content must be an object")
		}
		cleaned = sanitized
	}

	// Second line of defense: if the sanitized result still matches the
	// deny list the save is rejected, not silently re-sanitized.
	dangerous, err := sanitize.InspectJSON(cleaned)
	if err != nil {
		return saveOutcome{}, newError(CodeValidationError, "content is not serializable: %v", err)
	}
	if dangerous {
		return saveOutcome{}, newError(CodeDangerousContent, "content still contains dangerous patterns after sanitization")
	}

	res, err := s.versions.SaveContent(ctx, def.Path, cleaned, version.SaveOptions{
		ExpectedVersion:   req.ExpectedVersion,
		Publish:           req.Publish,
		Actor:             actor,
		ChangeDescription: req.ChangeDescription,
	})
	if err != nil {
		return saveOutcome{}, translateVersionError(err)
	}
	return saveOutcome{version: res.Version, content: cleaned}, nil
}

// GetContent returns the live document for a content type.
func (s *Service) GetContent(ctx context.Context, actor auth.Actor, contentType string) (version.Document, error) {
	if err := s.ready(actor); err != nil {
		return version.Document{}, err
	}
	if err := guard(actor, auth.PermContentRead); err != nil {
		return version.Document{}, err
	}
	def, ok := s.registry.Lookup(contentType)
	if !ok {
		def = schema.Generic(contentType)
	}
	doc, err := s.versions.GetContent(ctx, def.Path)
	if err != nil {
		return version.Document{}, translateVersionError(err)
	}
	return doc, nil
}

// DeleteContent removes content. The default soft delete keeps the document
// versioned and recoverable behind a deletion marker and archives its
// status; a hard delete additionally requires admin-management rights and
// physically removes the live document (history remains).
func (s *Service) DeleteContent(ctx context.Context, actor auth.Actor, contentType string, hard bool) (SaveResponse, error) {
	if err := s.ready(actor); err != nil {
		return SaveResponse{}, err
	}
	def, ok := s.registry.Lookup(contentType)
	if !ok {
		def = schema.Generic(contentType)
	}

	var prevContent map[string]any
	if doc, err := s.versions.GetContent(ctx, def.Path); err == nil {
		prevContent = doc.Content
	}

	resp, err := s.doDelete(ctx, actor, def, hard)
	if err != nil {
		s.audit.Record(ctx, audit.Entry{
			Action:       audit.ActionContentDelete,
			UserID:       actor.ID,
			UserEmail:    actor.Email,
			UserRole:     string(actor.Role),
			ResourceType: contentType,
			ResourcePath: def.Path,
			PreviousVal:  prevContent,
			Success:      false,
			ErrorMessage: err.Error(),
			Metadata:     map[string]any{"hard": hard},
		})
		return SaveResponse{}, err
	}
	s.audit.Record(ctx, audit.Entry{
		Action:       audit.ActionContentDelete,
		UserID:       actor.ID,
		UserEmail:    actor.Email,
		UserRole:     string(actor.Role),
		ResourceType: contentType,
		ResourcePath: def.Path,
		PreviousVal:  prevContent,
		Success:      true,
		Metadata:     map[string]any{"hard": hard},
	})
	return resp, nil
}

func (s *Service) doDelete(ctx context.Context, actor auth.Actor, def schema.Definition, hard bool) (SaveResponse, error) {
	if err := guard(actor, auth.PermContentDelete); err != nil {
		return SaveResponse{}, err
	}
	if hard {
		if err := guard(actor, auth.PermAdminDelete); err != nil {
			return SaveResponse{}, err
		}
		if err := s.versions.HardDelete(ctx, def.Path); err != nil {
			return SaveResponse{}, translateVersionError(err)
		}
		return SaveResponse{}, nil
	}

	doc, err := s.versions.GetContent(ctx, def.Path)
	if err != nil {
		return SaveResponse{}, translateVersionError(err)
	}
	marked := make(map[string]any, len(doc.Content)+3)
	for k, v := range doc.Content {
		marked[k] = v
	}
	marked[deletedMarker] = true
	marked["_deletedAt"] = s.now().UTC().Format(time.RFC3339)
	marked["_deletedBy"] = actor.ID

	archived := version.StatusArchived
	cur := doc.Meta.Version
	res, err := s.versions.SaveContent(ctx, def.Path, marked, version.SaveOptions{
		ExpectedVersion:   &cur,
		Actor:             actor,
		ChangeDescription: "soft delete",
		Status:            &archived,
	})
	if err != nil {
		return SaveResponse{}, translateVersionError(err)
	}
	return SaveResponse{Version: res.Version}, nil
}

// UnpublishContent reverts a published document to draft without changing
// its content. The transition is versioned like any other save.
func (s *Service) UnpublishContent(ctx context.Context, actor auth.Actor, contentType string) (SaveResponse, error) {
	if err := s.ready(actor); err != nil {
		return SaveResponse{}, err
	}
	def, ok := s.registry.Lookup(contentType)
	if !ok {
		def = schema.Generic(contentType)
	}
	if err := guard(actor, auth.PermContentPublish); err != nil {
		s.audit.LogContentChange(ctx, audit.ActionContentUnpublish, actor, contentType, def.Path, nil, nil, false, err.Error())
		return SaveResponse{}, err
	}

	doc, err := s.versions.GetContent(ctx, def.Path)
	if err != nil {
		terr := translateVersionError(err)
		s.audit.LogContentChange(ctx, audit.ActionContentUnpublish, actor, contentType, def.Path, nil, nil, false, terr.Error())
		return SaveResponse{}, terr
	}

	draft := version.StatusDraft
	cur := doc.Meta.Version
	res, err := s.versions.SaveContent(ctx, def.Path, doc.Content, version.SaveOptions{
		ExpectedVersion:   &cur,
		Actor:             actor,
		ChangeDescription: "unpublish",
		Status:            &draft,
	})
	if err != nil {
		terr := translateVersionError(err)
		s.audit.LogContentChange(ctx, audit.ActionContentUnpublish, actor, contentType, def.Path, doc.Content, nil, false, terr.Error())
		return SaveResponse{}, terr
	}
	s.audit.LogContentChange(ctx, audit.ActionContentUnpublish, actor, contentType, def.Path, doc.Content, doc.Content, true, "")
	return SaveResponse{Version: res.Version}, nil
}

// RollbackResponse reports a successful rollback.
type RollbackResponse struct {
	Version         int `json:"version"`
	RestoredVersion int `json:"restoredVersion"`
}

// RollbackContent restores a prior version's content as a new version.
func (s *Service) RollbackContent(ctx context.Context, actor auth.Actor, contentType string, targetVersion int) (RollbackResponse, error) {
	if err := s.ready(actor); err != nil {
		return RollbackResponse{}, err
	}
	def, ok := s.registry.Lookup(contentType)
	if !ok {
		def = schema.Generic(contentType)
	}

	if err := guard(actor, auth.PermContentRollback); err != nil {
		s.audit.LogContentRollback(ctx, actor, contentType, def.Path, nil, nil, 0, targetVersion, false, err.Error())
		return RollbackResponse{}, err
	}

	res, err := s.versions.RollbackToVersion(ctx, def.Path, targetVersion, actor)
	if err != nil {
		terr := translateVersionError(err)
		s.audit.LogContentRollback(ctx, actor, contentType, def.Path, nil, nil, 0, targetVersion, false, terr.Error())
		return RollbackResponse{}, terr
	}

	s.audit.LogContentRollback(ctx, actor, contentType, def.Path,
		res.Previous, res.Restored, res.Version-1, targetVersion, true, "")
	return RollbackResponse{Version: res.Version, RestoredVersion: res.RestoredVersion}, nil
}

// GetVersionHistory lists snapshots for a content type, newest first.
func (s *Service) GetVersionHistory(ctx context.Context, actor auth.Actor, contentType string, limit int) ([]version.Snapshot, error) {
	if err := s.ready(actor); err != nil {
		return nil, err
	}
	if err := guard(actor, auth.PermVersionRead); err != nil {
		return nil, err
	}
	def, ok := s.registry.Lookup(contentType)
	if !ok {
		def = schema.Generic(contentType)
	}
	return s.versions.GetVersionHistory(ctx, def.Path, limit)
}

// GetVersion fetches one snapshot.
func (s *Service) GetVersion(ctx context.Context, actor auth.Actor, contentType string, n int) (version.Snapshot, error) {
	if err := s.ready(actor); err != nil {
		return version.Snapshot{}, err
	}
	if err := guard(actor, auth.PermVersionRead); err != nil {
		return version.Snapshot{}, err
	}
	def, ok := s.registry.Lookup(contentType)
	if !ok {
		def = schema.Generic(contentType)
	}
	snap, err := s.versions.GetVersion(ctx, def.Path, n)
	if err != nil {
		return version.Snapshot{}, translateVersionError(err)
	}
	return snap, nil
}

// CompareVersions diffs two snapshots.
func (s *Service) CompareVersions(ctx context.Context, actor auth.Actor, contentType string, a, b int) (version.Comparison, error) {
	if err := s.ready(actor); err != nil {
		return version.Comparison{}, err
	}
	if err := guard(actor, auth.PermVersionRead); err != nil {
		return version.Comparison{}, err
	}
	def, ok := s.registry.Lookup(contentType)
	if !ok {
		def = schema.Generic(contentType)
	}
	cmp, err := s.versions.CompareVersions(ctx, def.Path, a, b)
	if err != nil {
		return version.Comparison{}, translateVersionError(err)
	}
	return cmp, nil
}

// translateVersionError maps engine errors onto the taxonomy so store
// internals never leak across the facade.
func translateVersionError(err error) error {
	var conflict *version.ConflictError
	switch {
	case errors.As(err, &conflict):
		return &Error{
			Code:            CodeVersionConflict,
			Message:         conflict.Error(),
			ExpectedVersion: conflict.Expected,
			ActualVersion:   conflict.Actual,
		}
	case errors.Is(err, version.ErrVersionNotFound):
		return newError(CodeVersionNotFound, "%v", err)
	case errors.Is(err, version.ErrNotFound):
		return newError(CodeNotFound, "%v", err)
	default:
		return newError(CodeInternal, "%v", err)
	}
}
