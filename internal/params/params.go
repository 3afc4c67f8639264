// Package params sanitizes write payloads: it computes the allowlist of
// writable keys for a resource and filters, then normalizes, incoming
// attribute maps against it.
package params

import (
	"strconv"
	"strings"

	"steward/internal/dashboard"
	"steward/internal/metadata"
	"steward/internal/policy"
)

// NestedSpec is the allowlist for one nested-writes association.
type NestedSpec struct {
	Association *metadata.Association
	Attributes  []string
}

// Allowlist is the full set of keys a write request may carry for a
// resource: direct columns plus nested association blocks keyed by
// their "<name>_attributes" parameter.
type Allowlist struct {
	Direct []string
	Nested map[string]NestedSpec
}

// Sanitizer derives allowlists from the attribute policy and applies
// them to raw payloads.
type Sanitizer struct {
	registry *metadata.Registry
	policy   *policy.Policy
}

func NewSanitizer(reg *metadata.Registry, pol *policy.Policy) *Sanitizer {
	return &Sanitizer{registry: reg, policy: pol}
}

// PermittedAttributes computes the allowlist for a resource. A dashboard
// form declaration narrows the structural default but can never widen
// it, and sensitive attributes are removed even when declared.
func (s *Sanitizer) PermittedAttributes(res *metadata.Resource) Allowlist {
	structural := s.policy.EditableAttributes(res)
	declared := s.policy.AttributesFor(res, dashboard.ViewForm)

	editable := make(map[string]dashboard.AttributeSpec, len(structural))
	for _, spec := range structural {
		editable[spec.Name] = spec
	}

	filter := s.policy.Filter()
	out := Allowlist{Nested: make(map[string]NestedSpec)}
	for _, spec := range declared {
		base, ok := editable[spec.Name]
		if !ok {
			continue
		}
		if filter.Sensitive(spec.Name) {
			continue
		}
		if base.IsNested() {
			assoc := s.registry.Association(res.Name, spec.Name)
			if assoc == nil {
				continue
			}
			out.Nested[spec.Name+"_attributes"] = NestedSpec{
				Association: assoc,
				Attributes:  s.nestedAttributes(assoc),
			}
			continue
		}
		out.Direct = append(out.Direct, spec.Name)
	}
	return out
}

// nestedAttributes is the writable set for a nested target: its own
// editable columns minus sensitive names and the foreign key pointing
// back at the parent, plus the id and _destroy markers nested writes
// need to address and remove existing children.
func (s *Sanitizer) nestedAttributes(assoc *metadata.Association) []string {
	target := s.registry.GetResource(assoc.Target)
	if target == nil {
		return nil
	}

	filter := s.policy.Filter()
	attrs := []string{target.PrimaryKey.Column, "_destroy"}
	for _, spec := range s.policy.EditableAttributes(target) {
		if spec.IsNested() {
			continue
		}
		if spec.Name == assoc.ForeignKey || filter.Sensitive(spec.Name) {
			continue
		}
		attrs = append(attrs, spec.Name)
	}
	return attrs
}

// Permit filters a raw payload down to the allowlist, recursing into
// nested blocks. Keys outside the allowlist are dropped silently.
func (s *Sanitizer) Permit(res *metadata.Resource, raw map[string]any) map[string]any {
	allow := s.PermittedAttributes(res)

	direct := make(map[string]bool, len(allow.Direct))
	for _, name := range allow.Direct {
		direct[name] = true
	}

	out := make(map[string]any)
	for key, value := range raw {
		if direct[key] {
			out[key] = value
			continue
		}
		spec, ok := allow.Nested[key]
		if !ok {
			continue
		}
		out[key] = permitNested(spec, value)
	}
	return out
}

func permitNested(spec NestedSpec, value any) any {
	allowed := make(map[string]bool, len(spec.Attributes))
	for _, name := range spec.Attributes {
		allowed[name] = true
	}

	filterOne := func(item any) map[string]any {
		m, ok := item.(map[string]any)
		if !ok {
			return nil
		}
		out := make(map[string]any)
		for k, v := range m {
			if allowed[k] {
				out[k] = v
			}
		}
		return out
	}

	switch v := value.(type) {
	case []any:
		var out []any
		for _, item := range v {
			if m := filterOne(item); m != nil {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		if m := filterOne(v); m != nil {
			return m
		}
		return map[string]any{}
	default:
		return nil
	}
}

// Normalize coerces permitted values toward their column types. Array
// columns accept delimited strings; element coercion failures keep the
// string form rather than rejecting the write.
func (s *Sanitizer) Normalize(res *metadata.Resource, attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for key, value := range attrs {
		col := res.Column(key)
		if col == nil {
			if target := s.nestedTarget(res, key); target != nil {
				out[key] = s.normalizeNested(target, value)
			} else {
				out[key] = value
			}
			continue
		}
		if col.Array {
			out[key] = normalizeArray(col, value)
			continue
		}
		out[key] = value
	}
	return out
}

func (s *Sanitizer) nestedTarget(res *metadata.Resource, key string) *metadata.Resource {
	name, ok := strings.CutSuffix(key, "_attributes")
	if !ok {
		return nil
	}
	assoc := s.registry.Association(res.Name, name)
	if assoc == nil {
		return nil
	}
	return s.registry.GetResource(assoc.Target)
}

func (s *Sanitizer) normalizeNested(target *metadata.Resource, value any) any {
	switch v := value.(type) {
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, s.Normalize(target, m))
			}
		}
		return out
	case map[string]any:
		return s.Normalize(target, v)
	default:
		return value
	}
}

// normalizeArray turns a delimited string into a typed element slice.
// Values already in slice form only get element coercion.
func normalizeArray(col *metadata.Column, value any) any {
	var elems []any
	switch v := value.(type) {
	case string:
		for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == '\n' }) {
			part = strings.TrimSpace(part)
			if part != "" {
				elems = append(elems, part)
			}
		}
	case []any:
		elems = v
	case []string:
		for _, e := range v {
			elems = append(elems, e)
		}
	default:
		return value
	}

	out := make([]any, 0, len(elems))
	for _, e := range elems {
		out = append(out, coerceElement(col.ElemType, e))
	}
	return out
}

func coerceElement(elemType string, value any) any {
	raw, ok := value.(string)
	if !ok {
		return value
	}
	switch elemType {
	case metadata.TypeInteger:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	case metadata.TypeFloat:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case metadata.TypeBoolean:
		if b, ok := parseBooleanWord(raw); ok {
			return b
		}
	}
	return raw
}

func parseBooleanWord(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	}
	return false, false
}
