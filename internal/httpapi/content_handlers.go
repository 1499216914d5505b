package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"chariotek.org/internal/auth"
	"chariotek.org/internal/content"
)

type saveContentRequest struct {
	Content           map[string]any `json:"content"`
	ExpectedVersion   *int           `json:"expectedVersion"`
	Publish           bool           `json:"publish"`
	ChangeDescription string         `json:"changeDescription"`
}

type rollbackRequest struct {
	Version int `json:"version"`
}

func (a *API) handleContent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/content/"), "/")
	if path == "" {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	contentType := parts[0]

	switch len(parts) {
	case 1:
		switch r.Method {
		case http.MethodGet:
			a.getContent(w, r, actor, contentType)
		case http.MethodPut:
			a.saveContent(w, r, actor, contentType)
		case http.MethodDelete:
			a.deleteContent(w, r, actor, contentType)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	case 2:
		switch parts[1] {
		case "unpublish":
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			a.unpublishContent(w, r, actor, contentType)
		case "rollback":
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			a.rollbackContent(w, r, actor, contentType)
		case "versions":
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			a.listVersions(w, r, actor, contentType)
		case "compare":
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			a.compareVersions(w, r, actor, contentType)
		default:
			writeError(w, http.StatusNotFound, "resource not found")
		}
	case 3:
		if parts[1] != "versions" || r.Method != http.MethodGet {
			writeError(w, http.StatusNotFound, "resource not found")
			return
		}
		a.getVersion(w, r, actor, contentType, parts[2])
	default:
		writeError(w, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getContent(w http.ResponseWriter, r *http.Request, actor auth.Actor, contentType string) {
	doc, err := a.content.GetContent(r.Context(), actor, contentType)
	if err != nil {
		handleContentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) saveContent(w http.ResponseWriter, r *http.Request, actor auth.Actor, contentType string) {
	var req saveContentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Content) == 0 {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	resp, err := a.content.SaveContent(r.Context(), actor, content.SaveRequest{
		ContentType:       contentType,
		Content:           req.Content,
		ExpectedVersion:   req.ExpectedVersion,
		Publish:           req.Publish,
		ChangeDescription: strings.TrimSpace(req.ChangeDescription),
	})
	if err != nil {
		handleContentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) deleteContent(w http.ResponseWriter, r *http.Request, actor auth.Actor, contentType string) {
	hard := r.URL.Query().Get("hard") == "true"
	resp, err := a.content.DeleteContent(r.Context(), actor, contentType, hard)
	if err != nil {
		handleContentError(w, err)
		return
	}
	if hard {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) unpublishContent(w http.ResponseWriter, r *http.Request, actor auth.Actor, contentType string) {
	resp, err := a.content.UnpublishContent(r.Context(), actor, contentType)
	if err != nil {
		handleContentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) rollbackContent(w http.ResponseWriter, r *http.Request, actor auth.Actor, contentType string) {
	var req rollbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Version < 1 {
		writeError(w, http.StatusBadRequest, "version must be >= 1")
		return
	}
	resp, err := a.content.RollbackContent(r.Context(), actor, contentType, req.Version)
	if err != nil {
		handleContentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) listVersions(w http.ResponseWriter, r *http.Request, actor auth.Actor, contentType string) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = v
	}
	history, err := a.content.GetVersionHistory(r.Context(), actor, contentType, limit)
	if err != nil {
		handleContentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": history})
}

func (a *API) getVersion(w http.ResponseWriter, r *http.Request, actor auth.Actor, contentType, raw string) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "version must be a positive integer")
		return
	}
	snap, err := a.content.GetVersion(r.Context(), actor, contentType, n)
	if err != nil {
		handleContentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) compareVersions(w http.ResponseWriter, r *http.Request, actor auth.Actor, contentType string) {
	from, err1 := strconv.Atoi(r.URL.Query().Get("from"))
	to, err2 := strconv.Atoi(r.URL.Query().Get("to"))
	if err1 != nil || err2 != nil || from < 1 || to < 1 {
		writeError(w, http.StatusBadRequest, "from and to must be positive integers")
		return
	}
	cmp, err := a.content.CompareVersions(r.Context(), actor, contentType, from, to)
	if err != nil {
		handleContentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}
