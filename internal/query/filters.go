package query

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"steward/internal/metadata"
)

// Filter kinds. Each kind determines the parameter keys a definition
// listens to and how raw values are parsed.
const (
	KindContains = "contains"
	KindNumeric  = "numeric"
	KindTemporal = "temporal"
	KindBoolean  = "boolean"
	KindEnum     = "enum"
)

// FilterDefinition is a typed predicate template derived from one column.
type FilterDefinition struct {
	Attribute string   `json:"attribute"`
	Kind      string   `json:"kind"`
	Type      string   `json:"type"` // column semantic type
	ParamKeys []string `json:"param_keys"`
	Label     string   `json:"label"`
	Options   []string `json:"options,omitempty"` // enum keys
}

// BuildDefinitions derives the filter definitions for a resource from
// its column metadata. The primary key, timestamps, and array columns
// are not filterable.
func BuildDefinitions(res *metadata.Resource) []FilterDefinition {
	var defs []FilterDefinition
	for _, col := range res.Columns {
		if col.Name == res.PrimaryKey.Column || col.Name == "created_at" || col.Name == "updated_at" {
			continue
		}
		if col.Array {
			continue
		}

		switch {
		case col.IsEnum():
			defs = append(defs, FilterDefinition{
				Attribute: col.Name,
				Kind:      KindEnum,
				Type:      metadata.TypeEnum,
				ParamKeys: []string{col.Name + "_equals"},
				Label:     labelize(col.Name),
				Options:   col.Enum,
			})
		case col.IsSearchable():
			defs = append(defs, FilterDefinition{
				Attribute: col.Name,
				Kind:      KindContains,
				Type:      col.Type,
				ParamKeys: []string{col.Name + "_contains"},
				Label:     labelize(col.Name),
			})
		case col.IsNumeric():
			defs = append(defs, FilterDefinition{
				Attribute: col.Name,
				Kind:      KindNumeric,
				Type:      col.Type,
				ParamKeys: []string{col.Name + "_min", col.Name + "_max"},
				Label:     labelize(col.Name),
			})
		case col.IsTemporal():
			defs = append(defs, FilterDefinition{
				Attribute: col.Name,
				Kind:      KindTemporal,
				Type:      col.Type,
				ParamKeys: []string{col.Name + "_from", col.Name + "_to"},
				Label:     labelize(col.Name),
			})
		case col.Type == metadata.TypeBoolean:
			defs = append(defs, FilterDefinition{
				Attribute: col.Name,
				Kind:      KindBoolean,
				Type:      col.Type,
				ParamKeys: []string{col.Name + "_equals"},
				Label:     labelize(col.Name),
			})
		}
	}
	return defs
}

// ParamKeys returns every parameter key across a definition list.
func ParamKeys(defs []FilterDefinition) []string {
	var keys []string
	for _, def := range defs {
		keys = append(keys, def.ParamKeys...)
	}
	return keys
}

// Fingerprint hashes the schema facts the definitions depend on: column
// names, types, nullability, defaults, and enum keys.
func Fingerprint(res *metadata.Resource) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s;", res.Name, res.PrimaryKey.Column)
	for _, col := range res.Columns {
		fmt.Fprintf(h, "%s|%s|%t|%v|%s|%t|%s;",
			col.Name, col.Type, col.Nullable, col.Default,
			strings.Join(col.Enum, ","), col.Array, col.ElemType)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DefinitionCache memoizes filter definitions per resource, keyed by
// schema fingerprint with a bounded TTL so stale fingerprints age out.
// Reads vastly outnumber writes; a stale entry within the TTL window is
// acceptable.
type DefinitionCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	fingerprint string
	expires     time.Time
	defs        []FilterDefinition
}

const DefaultCacheTTL = time.Hour

func NewDefinitionCache(ttl time.Duration) *DefinitionCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &DefinitionCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

// DefinitionsFor returns the cached definitions for a resource,
// recomputing when the fingerprint changed or the entry expired.
func (c *DefinitionCache) DefinitionsFor(res *metadata.Resource) []FilterDefinition {
	fp := Fingerprint(res)

	c.mu.RLock()
	entry, ok := c.entries[res.Name]
	c.mu.RUnlock()
	if ok && entry.fingerprint == fp && time.Now().Before(entry.expires) {
		return entry.defs
	}

	defs := BuildDefinitions(res)
	c.mu.Lock()
	c.entries[res.Name] = cacheEntry{fingerprint: fp, expires: time.Now().Add(c.ttl), defs: defs}
	c.mu.Unlock()
	return defs
}

func labelize(attr string) string {
	words := strings.Split(attr, "_")
	if len(words) == 0 {
		return attr
	}
	first := words[0]
	if first != "" {
		first = strings.ToUpper(first[:1]) + first[1:]
	}
	return strings.Join(append([]string{first}, words[1:]...), " ")
}
