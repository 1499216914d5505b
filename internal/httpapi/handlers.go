// Package httpapi exposes the content service, admin management, and audit
// trail over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"chariotek.org/internal/audit"
	"chariotek.org/internal/auth"
	"chariotek.org/internal/content"
	"chariotek.org/internal/obs"
)

// Pinger is the readiness dependency; the Postgres store satisfies it, the
// in-memory store runs without one.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ReadyProbe struct {
	Store Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	return rp.Store.Ping(ctx)
}

type API struct {
	mux        *http.ServeMux
	content    *content.Service
	admins     *auth.AdminService
	audit      *audit.Logger
	readyProbe ReadyProbe
	version    string
}

func New(svc *content.Service, admins *auth.AdminService, auditLog *audit.Logger, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		content:    svc,
		admins:     admins,
		audit:      auditLog,
		readyProbe: rp,
		version:    version,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)

	a.mux.HandleFunc("/v1/content/", a.handleContent)

	a.mux.HandleFunc("/v1/admin/users", a.handleAdminUsers)
	a.mux.HandleFunc("/v1/admin/users/", a.handleAdminUserResource)
	a.mux.HandleFunc("/v1/audit", a.handleAuditQuery)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler wraps the mux with the full middleware chain.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 50, 25)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "chariotek-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "chariotek-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleContentError maps the facade taxonomy onto HTTP status codes.
func handleContentError(w http.ResponseWriter, err error) {
	var ce *content.Error
	if !errors.As(err, &ce) {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	switch ce.Code {
	case content.CodeValidationError, content.CodeDangerousContent:
		writeJSON(w, http.StatusBadRequest, content.ResultOf(err))
	case content.CodeVersionConflict:
		writeJSON(w, http.StatusConflict, map[string]any{
			"errorCode":       ce.Code,
			"message":         ce.Message,
			"expectedVersion": ce.ExpectedVersion,
			"actualVersion":   ce.ActualVersion,
		})
	case content.CodeNotFound, content.CodeVersionNotFound:
		writeJSON(w, http.StatusNotFound, content.ResultOf(err))
	case content.CodeInsufficientPermissions:
		writeJSON(w, http.StatusForbidden, content.ResultOf(err))
	case content.CodeNotReady:
		writeJSON(w, http.StatusServiceUnavailable, content.ResultOf(err))
	default:
		writeJSON(w, http.StatusInternalServerError, content.ResultOf(err))
	}
}
