package sanitize

import (
	"strings"
	"testing"
)

func TestTitleStripsScriptsAndCollapsesWhitespace(t *testing.T) {
	got := Title("  Hello <script>alert(1)</script> World  ")
	if got != "Hello World" {
		t.Fatalf("Title = %q, want %q", got, "Hello World")
	}
}

func TestTitleEscapesMarkup(t *testing.T) {
	got := Title(`<b>bold</b> & "quoted"`)
	if strings.Contains(got, "<") || strings.Contains(got, `"`) {
		t.Fatalf("Title left raw markup: %q", got)
	}
	if !strings.Contains(got, "&lt;b&gt;") {
		t.Fatalf("Title should HTML-escape, got %q", got)
	}
}

func TestTitleCapsLength(t *testing.T) {
	got := Title(strings.Repeat("a", 500))
	if len(got) != 200 {
		t.Fatalf("Title length = %d, want 200", len(got))
	}
}

func TestStripDangerousPatterns(t *testing.T) {
	cases := []string{
		`<script src="x.js">`,
		`javascript:alert(1)`,
		`JaVaScRiPt : alert(1)`,
		`<img onerror=alert(1)>`,
		`<iframe src="x"></iframe>`,
		`eval(code)`,
		`setTimeout(fn)`,
		`document.cookie`,
		`window.open`,
		`data:text/html,payload`,
	}
	for _, in := range cases {
		if !ContainsDangerous(in) {
			t.Errorf("ContainsDangerous(%q) = false, want true", in)
		}
		if ContainsDangerous(StripDangerous(in)) {
			t.Errorf("StripDangerous(%q) still dangerous: %q", in, StripDangerous(in))
		}
	}
}

func TestDangerousFunctionNamesAreCaseSensitive(t *testing.T) {
	// "evaluation(" is prose, not a call to eval
	if ContainsDangerous("the evaluation(s) went fine") {
		t.Fatal("word-boundary check failed for evaluation")
	}
	if ContainsDangerous("EVAL(x)") {
		t.Fatal("uppercase EVAL should not match the deny list")
	}
	if !ContainsDangerous("eval(x)") {
		t.Fatal("lowercase eval( must match")
	}
}

func TestURLAllowList(t *testing.T) {
	allowed := []string{
		"https://example.com/page?q=1",
		"http://example.com",
		"mailto:team@example.com",
		"tel:+77010000000",
	}
	for _, in := range allowed {
		out, err := URL(in)
		if err != nil {
			t.Errorf("URL(%q) rejected: %v", in, err)
		}
		if out == "" {
			t.Errorf("URL(%q) returned empty", in)
		}
	}

	rejected := []string{
		"ftp://example.com/file",
		"javascript:alert(1)",
		"",
		"   ",
	}
	for _, in := range rejected {
		if _, err := URL(in); err == nil {
			t.Errorf("URL(%q) accepted, want rejection", in)
		}
	}
}

func TestEmailNormalizes(t *testing.T) {
	if got := Email("  Admin@Example.COM "); got != "admin@example.com" {
		t.Fatalf("Email = %q", got)
	}
	if got := Email("not-an-email"); got != "" {
		t.Fatalf("Email accepted junk: %q", got)
	}
}

func TestPhone(t *testing.T) {
	if got := Phone("+7 (701) 000-00-00"); got == "" {
		t.Fatal("Phone rejected a valid number")
	}
	if got := Phone("call me maybe"); got != "" {
		t.Fatalf("Phone accepted junk: %q", got)
	}
}

func TestRichTextKeepsSafeMarkup(t *testing.T) {
	in := `<p>Hello <strong>world</strong></p><script>alert(1)</script><a href="x" onclick="evil()">link</a>`
	got := RichText(in)
	if !strings.Contains(got, "<strong>world</strong>") {
		t.Fatalf("RichText dropped safe markup: %q", got)
	}
	if strings.Contains(got, "script") || strings.Contains(got, "onclick") {
		t.Fatalf("RichText kept dangerous markup: %q", got)
	}
}

func TestObjectAppliesRulesRecursively(t *testing.T) {
	rules := map[string]Rule{
		"title": RuleTitle,
		"link":  RuleURL,
	}
	in := map[string]any{
		"title": "  Hi <script>x</script> there ",
		"link":  "javascript:alert(1)",
		"count": float64(3),
		"nested": map[string]any{
			"title": " Inner <script>y</script> ",
		},
		"tags": []any{" one ", " two "},
	}
	out, ok := Object(in, rules).(map[string]any)
	if !ok {
		t.Fatal("Object changed the outer shape")
	}
	if out["title"] != "Hi there" {
		t.Fatalf("title = %q", out["title"])
	}
	if out["link"] != "" {
		t.Fatalf("disallowed link survived: %q", out["link"])
	}
	if out["count"] != float64(3) {
		t.Fatalf("non-string scalar changed: %v", out["count"])
	}
	nested := out["nested"].(map[string]any)
	if nested["title"] != "Inner" {
		t.Fatalf("nested title = %q", nested["title"])
	}
	tags := out["tags"].([]any)
	if tags[0] != "one" || tags[1] != "two" {
		t.Fatalf("tags = %v", tags)
	}
}

func TestInspectJSONCatchesRawAngleBrackets(t *testing.T) {
	dangerous, err := InspectJSON(map[string]any{"body": "<script>alert(1)</script>"})
	if err != nil {
		t.Fatalf("InspectJSON: %v", err)
	}
	if !dangerous {
		t.Fatal("InspectJSON missed an embedded script tag")
	}

	clean, err := InspectJSON(map[string]any{"body": "plain text"})
	if err != nil {
		t.Fatalf("InspectJSON: %v", err)
	}
	if clean {
		t.Fatal("InspectJSON flagged clean content")
	}
}
