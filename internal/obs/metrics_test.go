package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/v1/content/homepage":          "/v1/content/:type",
		"/v1/content/homepage/versions": "/v1/content/:type/versions",
		"/v1/content/services/rollback": "/v1/content/:type/rollback",
		"/v1/content/about?limit=5":     "/v1/content/:type",
		"/v1/admin/users/abc123":        "/v1/admin/users/:id",
		"/v1/admin/users":               "/v1/admin/users",
		"/v1/audit":                     "/v1/audit",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
