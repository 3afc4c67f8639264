package metadata

import "sync"

// Registry holds all administrable resources and their associations.
// It is read by many concurrent requests and replaced wholesale on
// reload, so all access goes through the RWMutex.
type Registry struct {
	mu             sync.RWMutex
	resources      map[string]*Resource
	assocsBySource map[string][]*Association
	assocsByName   map[string]*Association
}

func NewRegistry() *Registry {
	return &Registry{
		resources:      make(map[string]*Resource),
		assocsBySource: make(map[string][]*Association),
		assocsByName:   make(map[string]*Association),
	}
}

// GetResource returns the resource with the given canonical name, or nil.
func (r *Registry) GetResource(name string) *Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resources[name]
}

// AllResources returns all registered resources.
func (r *Registry) AllResources() []*Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resources := make([]*Resource, 0, len(r.resources))
	for _, res := range r.resources {
		resources = append(resources, res)
	}
	return resources
}

// AssociationsFor returns all associations whose source is the given resource.
func (r *Registry) AssociationsFor(resourceName string) []*Association {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.assocsBySource[resourceName]
}

// Association returns the named association of a source resource, or nil.
func (r *Registry) Association(source, name string) *Association {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.assocsByName[assocKey(source, name)]
}

func assocKey(source, name string) string {
	return source + "." + name
}

// Register adds or replaces a single resource and its associations.
// Used by hosts that declare resources in code at startup.
func (r *Registry) Register(res *Resource, assocs ...*Association) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[res.Name] = res
	for _, a := range assocs {
		if existing := r.assocsByName[assocKey(a.Source, a.Name)]; existing != nil {
			r.removeFromSourceLocked(existing)
		}
		r.assocsByName[assocKey(a.Source, a.Name)] = a
		r.assocsBySource[a.Source] = append(r.assocsBySource[a.Source], a)
	}
}

// Load replaces all resources and associations in the registry.
// Called during startup and on reload.
func (r *Registry) Load(resources []*Resource, associations []*Association) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resources = make(map[string]*Resource, len(resources))
	for _, res := range resources {
		r.resources[res.Name] = res
	}

	r.assocsBySource = make(map[string][]*Association)
	r.assocsByName = make(map[string]*Association, len(associations))
	for _, a := range associations {
		r.assocsByName[assocKey(a.Source, a.Name)] = a
		r.assocsBySource[a.Source] = append(r.assocsBySource[a.Source], a)
	}
}

func (r *Registry) removeFromSourceLocked(a *Association) {
	list := r.assocsBySource[a.Source]
	for i, existing := range list {
		if existing.Name == a.Name {
			r.assocsBySource[a.Source] = append(list[:i], list[i+1:]...)
			return
		}
	}
}
