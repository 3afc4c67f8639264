// Package policy computes which attributes of a resource are
// displayable and editable, merging structural defaults derived from the
// schema with per-resource dashboard overrides.
package policy

import (
	"steward/internal/dashboard"
	"steward/internal/metadata"
)

// priorityAttributes are pinned to the front of displayable lists,
// preserving the relative order of everything else.
var priorityAttributes = []string{"id", "email", "name", "title", "full_name", "first_name", "last_name"}

var displayExcluded = map[string]bool{"created_at": true, "updated_at": true}

type Policy struct {
	registry   *metadata.Registry
	dashboards *dashboard.Registry
	filter     *SensitiveFilter
}

func New(reg *metadata.Registry, dashboards *dashboard.Registry, filter *SensitiveFilter) *Policy {
	return &Policy{registry: reg, dashboards: dashboards, filter: filter}
}

// Filter exposes the sensitive-attribute filter shared with the write
// sanitizer.
func (p *Policy) Filter() *SensitiveFilter {
	return p.filter
}

// DisplayableAttributes returns the ordered structural default of
// attributes shown for a resource: all columns minus timestamps and
// credential-bearing fields, priority names first.
func (p *Policy) DisplayableAttributes(res *metadata.Resource) []string {
	var base []string
	for _, col := range res.Columns {
		if displayExcluded[col.Name] || p.filter.Credential(col.Name) {
			continue
		}
		base = append(base, col.Name)
	}
	return prioritize(base)
}

// EditableAttributes returns the structural default of writable
// attribute specs: all columns minus the primary key, timestamps and
// credential fields, plus one nested-block marker per association that
// accepts nested writes.
func (p *Policy) EditableAttributes(res *metadata.Resource) []dashboard.AttributeSpec {
	var specs []dashboard.AttributeSpec
	for _, col := range res.Columns {
		if col.Name == res.PrimaryKey.Column || displayExcluded[col.Name] || p.filter.Credential(col.Name) {
			continue
		}
		specs = append(specs, dashboard.Attr(col.Name))
	}
	for _, assoc := range p.registry.AssociationsFor(res.Name) {
		if assoc.NestedWrites && (assoc.Kind == metadata.HasMany || assoc.Kind == metadata.HasOne) {
			specs = append(specs, dashboard.NestedBlock(assoc.Name))
		}
	}
	return specs
}

// AttributesFor resolves the attribute list for a view: the dashboard's
// declaration wins entirely when present; otherwise structural defaults
// apply for that view only.
func (p *Policy) AttributesFor(res *metadata.Resource, view dashboard.View) []dashboard.AttributeSpec {
	if cfg := p.dashboards.For(res.Name); cfg != nil {
		if declared := cfg.Attributes(view); len(declared) > 0 {
			return declared
		}
	}
	switch view {
	case dashboard.ViewForm:
		return p.EditableAttributes(res)
	default:
		return attrSpecs(p.DisplayableAttributes(res))
	}
}

// CollectionIncludes returns the associations to preload for the
// collection view. Only associations explicitly named in the collection
// attribute list qualify, so listing a resource never over-fetches.
func (p *Policy) CollectionIncludes(res *metadata.Resource) []string {
	if cfg := p.dashboards.For(res.Name); cfg != nil {
		if declared := cfg.Includes(dashboard.ViewCollection); len(declared) > 0 {
			return p.preloadableOnly(res, declared)
		}
	}

	named := make(map[string]bool)
	for _, spec := range p.AttributesFor(res, dashboard.ViewCollection) {
		named[spec.Name] = true
	}

	var includes []string
	for _, assoc := range p.registry.AssociationsFor(res.Name) {
		if assoc.Preloadable() && named[assoc.Name] {
			includes = append(includes, assoc.Name)
		}
	}
	return includes
}

// ShowIncludes returns the associations to preload for the show view:
// every concrete to-one association, unless the dashboard overrides.
func (p *Policy) ShowIncludes(res *metadata.Resource) []string {
	if cfg := p.dashboards.For(res.Name); cfg != nil {
		if declared := cfg.Includes(dashboard.ViewShow); len(declared) > 0 {
			return p.preloadableOnly(res, declared)
		}
	}

	var includes []string
	for _, assoc := range p.registry.AssociationsFor(res.Name) {
		if assoc.Preloadable() {
			includes = append(includes, assoc.Name)
		}
	}
	return includes
}

func (p *Policy) preloadableOnly(res *metadata.Resource, names []string) []string {
	var out []string
	for _, name := range names {
		for _, assoc := range p.registry.AssociationsFor(res.Name) {
			if assoc.Name == name && assoc.Preloadable() {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

func attrSpecs(names []string) []dashboard.AttributeSpec {
	specs := make([]dashboard.AttributeSpec, len(names))
	for i, n := range names {
		specs[i] = dashboard.Attr(n)
	}
	return specs
}

func prioritize(attrs []string) []string {
	present := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		present[a] = true
	}

	var ordered []string
	pinned := make(map[string]bool)
	for _, a := range priorityAttributes {
		if present[a] {
			ordered = append(ordered, a)
			pinned[a] = true
		}
	}
	for _, a := range attrs {
		if !pinned[a] {
			ordered = append(ordered, a)
		}
	}
	return ordered
}
