// Package dashboard holds per-resource declarative configuration that
// overrides the structural attribute defaults computed by the policy
// package. Hosts register configs at startup; absence of a config (or of
// a single view's list) falls back to structural defaults.
package dashboard

import "sync"

// View identifies which attribute list a caller wants.
type View string

const (
	ViewCollection View = "collection"
	ViewShow       View = "show"
	ViewForm       View = "form"
)

// AttributeSpec is either a plain attribute name or a nested-association
// block carrying the sub-attributes exposed for that association.
type AttributeSpec struct {
	Name   string
	Nested []string
	nested bool
}

// Attr declares a plain attribute.
func Attr(name string) AttributeSpec {
	return AttributeSpec{Name: name}
}

// NestedBlock declares a nested-association block with an explicit
// sub-attribute list. An empty list means "the association's defaults".
func NestedBlock(name string, sub ...string) AttributeSpec {
	return AttributeSpec{Name: name, Nested: sub, nested: true}
}

// IsNested reports whether the spec is a nested-association block.
func (s AttributeSpec) IsNested() bool {
	return s.nested
}

// Config is the declarative dashboard for one resource.
type Config struct {
	Resource string

	CollectionAttributes []AttributeSpec
	ShowAttributes       []AttributeSpec
	FormAttributes       []AttributeSpec

	CollectionIncludes []string
	ShowIncludes       []string
}

// Attributes returns the attribute list for a view, or nil when the
// dashboard declares nothing for it.
func (c *Config) Attributes(view View) []AttributeSpec {
	if c == nil {
		return nil
	}
	switch view {
	case ViewCollection:
		return c.CollectionAttributes
	case ViewShow:
		return c.ShowAttributes
	case ViewForm:
		return c.FormAttributes
	default:
		return nil
	}
}

// Includes returns the eager-load hints declared for a view.
func (c *Config) Includes(view View) []string {
	if c == nil {
		return nil
	}
	switch view {
	case ViewCollection:
		return c.CollectionIncludes
	case ViewShow:
		return c.ShowIncludes
	default:
		return nil
	}
}

// Names flattens specs to their attribute names.
func Names(specs []AttributeSpec) []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

// Registry maps resource names to dashboard configs. Registered at
// process start; Replace supports dev-mode reload.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]*Config
}

func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]*Config)}
}

// Register adds or replaces the config for its resource.
func (r *Registry) Register(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Resource] = cfg
}

// For returns the config registered for a resource, or nil.
func (r *Registry) For(resource string) *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configs[resource]
}

// Replace swaps the whole config set atomically.
func (r *Registry) Replace(configs []*Config) {
	next := make(map[string]*Config, len(configs))
	for _, cfg := range configs {
		next[cfg.Resource] = cfg
	}
	r.mu.Lock()
	r.configs = next
	r.mu.Unlock()
}

// Resources returns the names of all resources with explicit configuration.
func (r *Registry) Resources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	return names
}
