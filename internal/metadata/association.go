package metadata

// Association kinds.
const (
	BelongsTo = "belongs_to"
	HasOne    = "has_one"
	HasMany   = "has_many"
)

// Association describes a named link between two resources.
// For belongs_to the foreign key lives on the source table; for has_one
// and has_many it lives on the target table.
type Association struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Source      string `json:"source"`
	Target      string `json:"target"`
	ForeignKey  string `json:"foreign_key"`
	Polymorphic bool   `json:"polymorphic,omitempty"`
	Through     bool   `json:"through,omitempty"`

	// NestedWrites marks a has_one/has_many association that accepts
	// nested attribute blocks on writes.
	NestedWrites bool `json:"nested_writes,omitempty"`
}

// Preloadable reports whether the association is eligible for eager
// loading and search joins: to-one, concrete, and not indirect.
func (a *Association) Preloadable() bool {
	if a.Polymorphic || a.Through {
		return false
	}
	return a.Kind == BelongsTo || a.Kind == HasOne
}

// SearchJoinable reports whether free-text search may join through the
// association. Only concrete belongs_to links qualify; they are to-one,
// so an outer join cannot duplicate base rows.
func (a *Association) SearchJoinable() bool {
	return a.Kind == BelongsTo && !a.Polymorphic && !a.Through
}

// Countable reports whether the association supports collection counting.
func (a *Association) Countable() bool {
	return a.Kind == HasMany && !a.Polymorphic
}
