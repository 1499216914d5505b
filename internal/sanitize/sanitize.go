// Package sanitize cleans untrusted strings and structured values before
// they reach storage. Transforms are pure; nothing here does I/O.
package sanitize

import (
	"errors"
	"html"
	"net/url"
	"regexp"
	"strings"
)

// Rule selects the treatment applied to a string field.
type Rule string

const (
	RuleText     Rule = "text"
	RuleTitle    Rule = "title"
	RuleURL      Rule = "url"
	RuleEmail    Rule = "email"
	RulePhone    Rule = "phone"
	RuleRichText Rule = "richText"
	RuleSkip     Rule = "skip"
)

const (
	maxTitleLen    = 200
	maxTextLen     = 5000
	maxRichTextLen = 50000
)

var ErrDisallowedURL = errors.New("sanitize: url rejected")

// dangerousPatterns is the fixed deny list stripped from every rule except
// skip. Keep order stable; tests assert against it.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`),
	regexp.MustCompile(`(?i)<script\b[^>]*>`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)vbscript\s*:`),
	regexp.MustCompile(`(?i)data:text/html`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
	regexp.MustCompile(`(?i)</?(iframe|object|embed|form|input|button)\b[^>]*>`),
	regexp.MustCompile(`\b(eval|Function|setTimeout|setInterval)\s*\(`),
	regexp.MustCompile(`(?i)document\.(cookie|write|location)`),
	regexp.MustCompile(`(?i)window\.(location|open)`),
}

// richTextTags are removed wholesale in rich text, including their inner
// content for paired tags.
var (
	richTextPairedTags = regexp.MustCompile(`(?is)<(script|style|iframe|object|embed|form)\b[^>]*>.*?</(script|style|iframe|object|embed|form)\s*>`)
	richTextLoneTags   = regexp.MustCompile(`(?i)</?(script|style|link|meta|iframe|object|embed|form)\b[^>]*/?>`)
	eventHandlerAttrs  = regexp.MustCompile(`(?i)\s+on\w+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	whitespaceRuns     = regexp.MustCompile(`\s+`)
)

var allowedURLSchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"mailto": true,
	"tel":    true,
}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ().\-]{5,19}$`)
)

// StripDangerous removes every deny-list match from s.
func StripDangerous(s string) string {
	for _, re := range dangerousPatterns {
		s = re.ReplaceAllString(s, "")
	}
	return s
}

// ContainsDangerous reports whether s still matches the deny list.
func ContainsDangerous(s string) bool {
	for _, re := range dangerousPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Title cleans a single-line heading: deny-list strip, HTML escape,
// whitespace collapse, length cap.
func Title(s string) string {
	s = StripDangerous(s)
	s = whitespaceRuns.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = html.EscapeString(s)
	return truncate(s, maxTitleLen)
}

// Text cleans general prose the same way as Title but keeps line breaks and
// allows longer values.
func Text(s string) string {
	s = StripDangerous(s)
	s = strings.TrimSpace(s)
	s = html.EscapeString(s)
	return truncate(s, maxTextLen)
}

// URL validates s against the protocol allow list. Parse failures and
// disallowed schemes are rejected, not repaired.
func URL(s string) (string, error) {
	s = strings.TrimSpace(StripDangerous(s))
	if s == "" {
		return "", ErrDisallowedURL
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", ErrDisallowedURL
	}
	if !allowedURLSchemes[strings.ToLower(u.Scheme)] {
		return "", ErrDisallowedURL
	}
	return u.String(), nil
}

// Email normalizes and validates an address, returning "" on mismatch.
func Email(s string) string {
	s = strings.TrimSpace(strings.ToLower(StripDangerous(s)))
	if !emailPattern.MatchString(s) {
		return ""
	}
	return s
}

// Phone validates a phone number, returning "" on mismatch.
func Phone(s string) string {
	s = strings.TrimSpace(StripDangerous(s))
	if !phonePattern.MatchString(s) {
		return ""
	}
	return s
}

// RichText removes the broader dangerous-tag set and residual event-handler
// attributes while preserving other markup.
func RichText(s string) string {
	s = richTextPairedTags.ReplaceAllString(s, "")
	s = richTextLoneTags.ReplaceAllString(s, "")
	s = eventHandlerAttrs.ReplaceAllString(s, "")
	s = StripDangerous(s)
	return truncate(strings.TrimSpace(s), maxRichTextLen)
}

// Apply runs the named rule over a single string. Unknown rules fall back to
// the text treatment; skip returns the input untouched.
func Apply(rule Rule, s string) string {
	switch rule {
	case RuleSkip:
		return s
	case RuleTitle:
		return Title(s)
	case RuleURL:
		out, err := URL(s)
		if err != nil {
			return ""
		}
		return out
	case RuleEmail:
		return Email(s)
	case RulePhone:
		return Phone(s)
	case RuleRichText:
		return RichText(s)
	default:
		return Text(s)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
