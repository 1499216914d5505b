package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"chariotek.org/internal/audit"
	"chariotek.org/internal/auth"
	"chariotek.org/internal/content"
	"chariotek.org/internal/docstore"
	"chariotek.org/internal/schema"
	"chariotek.org/internal/tasks"
	"chariotek.org/internal/version"
)

func newTestServer(t *testing.T) (*httptest.Server, *auth.AdminService, *tasks.Runner) {
	t.Helper()
	t.Setenv("CHARIOTEK_AUTH_SECRET", "test-secret")
	auth.ResetSecretCache()
	t.Cleanup(auth.ResetSecretCache)

	store := docstore.NewMemory()
	runner := tasks.NewRunner()

	versions, err := version.NewManager(store, runner)
	if err != nil {
		t.Fatalf("version.NewManager: %v", err)
	}
	auditLog, err := audit.NewLogger(store)
	if err != nil {
		t.Fatalf("audit.NewLogger: %v", err)
	}
	admins, err := auth.NewAdminService(auth.NewMemoryStore())
	if err != nil {
		t.Fatalf("auth.NewAdminService: %v", err)
	}
	svc, err := content.NewService(versions, auditLog, schema.Default())
	if err != nil {
		t.Fatalf("content.NewService: %v", err)
	}

	api := New(svc, admins, auditLog, ReadyProbe{}, "test")
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv, admins, runner
}

func bootstrapAndLogin(t *testing.T, srv *httptest.Server, admins *auth.AdminService) string {
	t.Helper()
	if _, err := admins.Bootstrap(context.Background(), "root@example.com", "pw123456"); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	body, _ := json.Marshal(map[string]string{"email": "root@example.com", "password": "pw123456"})
	resp, err := http.Post(srv.URL+"/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if out.Token == "" {
		t.Fatal("empty token")
	}
	return out.Token
}

func doJSON(t *testing.T, method, url, token string, payload any) *http.Response {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func TestHealthAndReady(t *testing.T) {
	srv, _, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, resp.StatusCode)
		}
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/content/homepage")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/content/homepage", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", resp.StatusCode)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv, admins, _ := newTestServer(t)
	if _, err := admins.Bootstrap(context.Background(), "root@example.com", "pw123456"); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	body, _ := json.Marshal(map[string]string{"email": "root@example.com", "password": "wrong"})
	resp, err := http.Post(srv.URL+"/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestContentLifecycleOverHTTP(t *testing.T) {
	srv, admins, runner := newTestServer(t)
	token := bootstrapAndLogin(t, srv, admins)
	base := srv.URL + "/v1/content/homepage"

	// save v1
	resp := doJSON(t, http.MethodPut, base, token, map[string]any{
		"content": map[string]any{"title": "Hello"},
	})
	var save struct {
		Version int `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&save); err != nil {
		t.Fatalf("decode save: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || save.Version != 1 {
		t.Fatalf("save status=%d version=%d", resp.StatusCode, save.Version)
	}

	// save v2 with optimistic lock
	resp = doJSON(t, http.MethodPut, base, token, map[string]any{
		"content":         map[string]any{"title": "Hello again"},
		"expectedVersion": 1,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save v2 status = %d", resp.StatusCode)
	}

	// stale lock conflicts with 409 and carries both versions
	resp = doJSON(t, http.MethodPut, base, token, map[string]any{
		"content":         map[string]any{"title": "stale"},
		"expectedVersion": 1,
	})
	var conflict struct {
		ErrorCode       string `json:"errorCode"`
		ExpectedVersion int    `json:"expectedVersion"`
		ActualVersion   int    `json:"actualVersion"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&conflict); err != nil {
		t.Fatalf("decode conflict: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict || conflict.ErrorCode != "VERSION_CONFLICT" {
		t.Fatalf("conflict status=%d body=%+v", resp.StatusCode, conflict)
	}
	if conflict.ExpectedVersion != 1 || conflict.ActualVersion != 2 {
		t.Fatalf("conflict versions = %+v", conflict)
	}

	// read
	resp = doJSON(t, http.MethodGet, base, token, nil)
	var doc struct {
		Content map[string]any `json:"content"`
		Meta    struct {
			Version int `json:"version"`
		} `json:"_meta"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode doc: %v", err)
	}
	resp.Body.Close()
	if doc.Meta.Version != 2 || doc.Content["title"] != "Hello again" {
		t.Fatalf("doc = %+v", doc)
	}

	// history
	runner.Wait()
	resp = doJSON(t, http.MethodGet, base+"/versions", token, nil)
	var hist struct {
		Versions []struct {
			Version int `json:"version"`
		} `json:"versions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	resp.Body.Close()
	if len(hist.Versions) != 1 || hist.Versions[0].Version != 1 {
		t.Fatalf("history = %+v", hist)
	}

	// rollback
	resp = doJSON(t, http.MethodPost, base+"/rollback", token, map[string]any{"version": 1})
	var rb struct {
		Version         int `json:"version"`
		RestoredVersion int `json:"restoredVersion"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		t.Fatalf("decode rollback: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || rb.Version != 3 || rb.RestoredVersion != 1 {
		t.Fatalf("rollback = %+v status=%d", rb, resp.StatusCode)
	}
}

func TestAdminUserManagementOverHTTP(t *testing.T) {
	srv, admins, _ := newTestServer(t)
	token := bootstrapAndLogin(t, srv, admins)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/admin/users", token, map[string]any{
		"email":    "editor@example.com",
		"role":     "editor",
		"password": "pw123456",
	})
	var created auth.AdminUser
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || created.Role != auth.RoleEditor {
		t.Fatalf("create status=%d user=%+v", resp.StatusCode, created)
	}

	// promote
	resp = doJSON(t, http.MethodPut, fmt.Sprintf("%s/v1/admin/users/%s/role", srv.URL, created.ID), token, map[string]any{"role": "admin"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("role change status = %d", resp.StatusCode)
	}

	// deactivate
	resp = doJSON(t, http.MethodPut, fmt.Sprintf("%s/v1/admin/users/%s/active", srv.URL, created.ID), token, map[string]any{"active": false})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deactivate status = %d", resp.StatusCode)
	}

	// the audit trail saw all of it
	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/audit?action=admin_create", token, nil)
	var page audit.QueryResult
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	resp.Body.Close()
	if len(page.Entries) != 1 || page.Entries[0].ResourceID != created.ID {
		t.Fatalf("audit page = %+v", page)
	}
}

func TestAuditQueryRequiresPermission(t *testing.T) {
	srv, admins, _ := newTestServer(t)
	token := bootstrapAndLogin(t, srv, admins)

	// create an editor and log in as them
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/admin/users", token, map[string]any{
		"email":    "editor@example.com",
		"role":     "editor",
		"password": "pw123456",
	})
	resp.Body.Close()

	body, _ := json.Marshal(map[string]string{"email": "editor@example.com", "password": "pw123456"})
	loginResp, err := http.Post(srv.URL+"/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("editor login: %v", err)
	}
	var out loginResponse
	if err := json.NewDecoder(loginResp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	loginResp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/audit", out.Token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("editor audit query status = %d, want 403", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, admins, _ := newTestServer(t)
	token := bootstrapAndLogin(t, srv, admins)

	resp := doJSON(t, http.MethodDelete, srv.URL+"/v1/audit", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodGet {
		t.Fatalf("Allow = %q", allow)
	}
}
