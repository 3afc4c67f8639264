package metadata

import (
	"errors"
	"fmt"
	"strings"
)

// ErrResourceNotFound marks a resource name that resolves to nothing.
// Callers must treat it as a client error, not a system fault.
var ErrResourceNotFound = errors.New("resource not found")

// systemResources are the engine's own bookkeeping types. They must
// never resolve through the public surface, even on an exact match.
var systemResources = map[string]bool{
	"resource":     true,
	"resources":    true,
	"association":  true,
	"associations": true,
	"actor":        true,
	"actors":       true,
	"audit_log":    true,
	"audit_logs":   true,
	"export":       true,
	"exports":      true,
}

// Resolve maps a free-text resource name from a request to exactly one
// registered resource. It tries case/number variants in order and falls
// back to a scan over all registered resources by normalized name.
func (r *Registry) Resolve(name string) (*Resource, error) {
	normalized := Underscore(strings.TrimSpace(name))
	if normalized == "" || IsSystemName(normalized) {
		return nil, fmt.Errorf("%w: %q", ErrResourceNotFound, name)
	}

	for _, candidate := range candidateNames(normalized) {
		if IsSystemName(candidate) {
			continue
		}
		if res := r.GetResource(candidate); res != nil {
			return res, nil
		}
	}

	// Fallback: scan the registry matching by singular name or table.
	singular := Singularize(normalized)
	for _, res := range r.AllResources() {
		if strings.EqualFold(res.Name, singular) || strings.EqualFold(res.Table, normalized) {
			return res, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrResourceNotFound, name)
}

// IsSystemName reports whether a normalized name refers to one of the
// engine's internal types or tables.
func IsSystemName(name string) bool {
	return strings.HasPrefix(name, "_") || systemResources[name]
}

func candidateNames(normalized string) []string {
	variants := []string{normalized, Singularize(normalized), Pluralize(normalized)}

	seen := make(map[string]bool, len(variants))
	var candidates []string
	for _, v := range variants {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		candidates = append(candidates, v)
	}
	return candidates
}
