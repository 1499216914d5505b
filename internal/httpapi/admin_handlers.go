package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chariotek.org/internal/audit"
	"chariotek.org/internal/auth"
)

const tokenTTL = 12 * time.Hour

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Actor     auth.Actor `json:"actor"`
}

type createUserRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	Password    string `json:"password"`
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	actor, err := a.admins.Authenticate(r.Context(), email, req.Password)
	if err != nil {
		a.audit.LogLogin(r.Context(), auth.Actor{Email: email}, false, err.Error())
		if errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	token, err := auth.GenerateToken(actor, tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	a.audit.LogLogin(r.Context(), actor, true, "")

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(tokenTTL),
		Actor:     actor,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	// Tokens are stateless; logout exists for the audit trail.
	a.audit.LogLogout(r.Context(), actor)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	switch r.Method {
	case http.MethodGet:
		users, err := a.admins.List(r.Context(), actor)
		if err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		a.createAdminUser(w, r, actor)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createAdminUser(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.admins.Create(r.Context(), actor, auth.NewAdminUser{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Role:        auth.Role(req.Role),
		Password:    req.Password,
	})
	if err != nil {
		a.audit.LogAdminManagement(r.Context(), audit.ActionAdminCreate, actor, "", nil, nil, false, err.Error())
		handleAuthError(w, err)
		return
	}
	a.audit.LogAdminManagement(r.Context(), audit.ActionAdminCreate, actor, user.ID, nil, user, true, "")
	w.Header().Set("Location", "/v1/admin/users/"+user.ID)
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleAdminUserResource(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/users/"), "/")
	if path == "" {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]

	switch len(parts) {
	case 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		user, err := a.admins.Get(r.Context(), actor, userID)
		if err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case 2:
		switch parts[1] {
		case "role":
			a.changeRole(w, r, actor, userID)
		case "active":
			a.setActive(w, r, actor, userID)
		default:
			writeError(w, http.StatusNotFound, "resource not found")
		}
	default:
		writeError(w, http.StatusNotFound, "resource not found")
	}
}

func (a *API) changeRole(w http.ResponseWriter, r *http.Request, actor auth.Actor, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, http.MethodPut)
		return
	}
	var req changeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	prev, _ := a.admins.Get(r.Context(), actor, userID)
	user, err := a.admins.ChangeRole(r.Context(), actor, userID, auth.Role(req.Role))
	if err != nil {
		a.audit.LogAdminManagement(r.Context(), audit.ActionAdminRoleChange, actor, userID, nil, nil, false, err.Error())
		handleAuthError(w, err)
		return
	}
	a.audit.LogAdminManagement(r.Context(), audit.ActionAdminRoleChange, actor, userID,
		map[string]any{"role": prev.Role}, map[string]any{"role": user.Role}, true, "")
	writeJSON(w, http.StatusOK, user)
}

func (a *API) setActive(w http.ResponseWriter, r *http.Request, actor auth.Actor, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, http.MethodPut)
		return
	}
	var req setActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.admins.SetActive(r.Context(), actor, userID, req.Active)
	if err != nil {
		a.audit.LogAdminManagement(r.Context(), audit.ActionAdminUpdate, actor, userID, nil, nil, false, err.Error())
		handleAuthError(w, err)
		return
	}
	a.audit.LogAdminManagement(r.Context(), audit.ActionAdminUpdate, actor, userID,
		nil, map[string]any{"isActive": user.IsActive}, true, "")
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := auth.RequirePermission(&actor, auth.PermAuditRead); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}

	q := r.URL.Query()
	f := audit.Filter{
		UserID:       strings.TrimSpace(q.Get("userId")),
		Action:       audit.Action(strings.TrimSpace(q.Get("action"))),
		ResourceType: strings.TrimSpace(q.Get("resourceType")),
		ResourceID:   strings.TrimSpace(q.Get("resourceId")),
		Cursor:       strings.TrimSpace(q.Get("cursor")),
	}
	if raw := strings.TrimSpace(q.Get("success")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "success must be a boolean")
			return
		}
		f.Success = &v
	}
	if raw := strings.TrimSpace(q.Get("start")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start must be RFC3339")
			return
		}
		f.StartDate = &t
	}
	if raw := strings.TrimSpace(q.Get("end")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end must be RFC3339")
			return
		}
		f.EndDate = &t
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		f.Limit = v
	}

	result, err := a.audit.Query(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "admin operation failed")
	}
}
