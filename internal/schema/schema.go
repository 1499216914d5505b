// Package schema maps content-type keys to validation and storage metadata.
// Types are resolved through a lookup table at call time; there is no
// reflection-driven dispatch.
package schema

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"chariotek.org/internal/sanitize"
)

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Definition binds a content-type key to its canonical storage path, its
// per-field sanitization rules, and its validator.
type Definition struct {
	Type          string
	Path          string
	SanitizeRules map[string]sanitize.Rule
	Validate      func(content map[string]any) []ValidationError
}

// Registry is the content-type lookup table.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds or replaces a definition.
func (r *Registry) Register(def Definition) error {
	if strings.TrimSpace(def.Type) == "" {
		return errors.New("schema: type key is required")
	}
	if strings.TrimSpace(def.Path) == "" {
		return fmt.Errorf("schema: %s: storage path is required", def.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Type] = def
	return nil
}

// Lookup resolves a content-type key.
func (r *Registry) Lookup(key string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[key]
	return def, ok
}

// Generic builds a fallback definition for unregistered types: content is
// stored under content/<type> and only shape-checked.
func Generic(key string) Definition {
	return Definition{
		Type:     key,
		Path:     "content/" + key,
		Validate: validateShape,
	}
}

func validateShape(content map[string]any) []ValidationError {
	if len(content) == 0 {
		return []ValidationError{{Field: "", Message: "content must not be empty"}}
	}
	return nil
}

// requireString demands a non-empty string field.
func requireString(content map[string]any, field string) *ValidationError {
	v, ok := content[field]
	if !ok {
		return &ValidationError{Field: field, Message: "is required"}
	}
	s, ok := v.(string)
	if !ok {
		return &ValidationError{Field: field, Message: "must be a string"}
	}
	if strings.TrimSpace(s) == "" {
		return &ValidationError{Field: field, Message: "must not be empty"}
	}
	return nil
}

// Default returns the registry preloaded with the site's content types.
func Default() *Registry {
	r := NewRegistry()
	for _, def := range builtins() {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}

func builtins() []Definition {
	return []Definition{
		{
			Type: "homepage",
			Path: "content/homepage",
			SanitizeRules: map[string]sanitize.Rule{
				"title":      sanitize.RuleTitle,
				"heroTitle":  sanitize.RuleTitle,
				"heroText":   sanitize.RuleText,
				"body":       sanitize.RuleRichText,
				"ctaUrl":     sanitize.RuleURL,
				"ctaLabel":   sanitize.RuleTitle,
				"videoUrl":   sanitize.RuleURL,
				"imageAlt":   sanitize.RuleText,
				"sections":   sanitize.RuleText,
			},
			Validate: func(content map[string]any) []ValidationError {
				var errs []ValidationError
				if e := requireString(content, "title"); e != nil {
					errs = append(errs, *e)
				}
				return errs
			},
		},
		{
			Type: "services",
			Path: "content/services",
			SanitizeRules: map[string]sanitize.Rule{
				"title":       sanitize.RuleTitle,
				"intro":       sanitize.RuleText,
				"description": sanitize.RuleRichText,
				"name":        sanitize.RuleTitle,
				"link":        sanitize.RuleURL,
			},
			Validate: func(content map[string]any) []ValidationError {
				var errs []ValidationError
				if e := requireString(content, "title"); e != nil {
					errs = append(errs, *e)
				}
				if items, ok := content["items"]; ok {
					if _, isList := items.([]any); !isList {
						errs = append(errs, ValidationError{Field: "items", Message: "must be a list"})
					}
				}
				return errs
			},
		},
		{
			Type: "about",
			Path: "content/about",
			SanitizeRules: map[string]sanitize.Rule{
				"title": sanitize.RuleTitle,
				"body":  sanitize.RuleRichText,
			},
			Validate: func(content map[string]any) []ValidationError {
				var errs []ValidationError
				if e := requireString(content, "title"); e != nil {
					errs = append(errs, *e)
				}
				return errs
			},
		},
		{
			Type: "contact",
			Path: "content/contact",
			SanitizeRules: map[string]sanitize.Rule{
				"title":   sanitize.RuleTitle,
				"email":   sanitize.RuleEmail,
				"phone":   sanitize.RulePhone,
				"address": sanitize.RuleText,
				"mapUrl":  sanitize.RuleURL,
			},
			Validate: func(content map[string]any) []ValidationError {
				var errs []ValidationError
				if e := requireString(content, "title"); e != nil {
					errs = append(errs, *e)
				}
				return errs
			},
		},
		{
			Type: "settings",
			Path: "content/settings",
			SanitizeRules: map[string]sanitize.Rule{
				"siteName":     sanitize.RuleTitle,
				"contactEmail": sanitize.RuleEmail,
				"footerText":   sanitize.RuleText,
				"socialUrl":    sanitize.RuleURL,
			},
			Validate: func(content map[string]any) []ValidationError {
				var errs []ValidationError
				if e := requireString(content, "siteName"); e != nil {
					errs = append(errs, *e)
				}
				return errs
			},
		},
	}
}
