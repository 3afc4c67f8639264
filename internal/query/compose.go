package query

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"steward/internal/metadata"
	"steward/internal/store"
)

// ListRequest carries the user-controlled query parts of a collection
// request. Every field is optional; malformed values degrade to "ignore
// this part", never to an error.
type ListRequest struct {
	Search    string
	Filters   map[string]string
	Sort      string
	Direction string
}

// Scope is a composed, unevaluated collection query: joins, predicates,
// ordering, and their bound parameters.
type Scope struct {
	Resource *metadata.Resource

	// IgnoredParams lists filter parameter keys whose values could not
	// be parsed and were skipped.
	IgnoredParams []string

	dialect store.Dialect
	joins   []string
	where   []string
	order   string
	pb      store.ParamBuilder
}

// Composer builds collection scopes from requests. Transforms apply in
// the canonical order search, filter, sort.
type Composer struct {
	registry *metadata.Registry
	dialect  store.Dialect
	cache    *DefinitionCache
}

func NewComposer(reg *metadata.Registry, dialect store.Dialect, cache *DefinitionCache) *Composer {
	return &Composer{registry: reg, dialect: dialect, cache: cache}
}

// Definitions returns the (cached) filter definitions for a resource.
func (c *Composer) Definitions(res *metadata.Resource) []FilterDefinition {
	return c.cache.DefinitionsFor(res)
}

// Scope composes the collection query for a resource and request.
func (c *Composer) Scope(res *metadata.Resource, req ListRequest) *Scope {
	s := &Scope{
		Resource: res,
		dialect:  c.dialect,
		pb:       c.dialect.NewParamBuilder(),
	}
	c.applySearch(s, req.Search)
	c.applyFilters(s, req.Filters)
	c.applySort(s, req.Sort, req.Direction)
	return s
}

// Narrow adds an equality predicate on a column of the base resource.
// Used by authorization scoping; unknown columns are ignored.
func (s *Scope) Narrow(column string, value any) *Scope {
	if !s.Resource.HasColumn(column) {
		return s
	}
	ph := s.pb.Add(value)
	s.where = append(s.where, fmt.Sprintf("%s.%s = %s", s.Resource.Table, column, ph))
	return s
}

// SelectSQL renders the scope as a paginated SELECT over the base
// table's columns.
func (s *Scope) SelectSQL(limit, offset int) (string, []any) {
	cols := make([]string, len(s.Resource.Columns))
	for i, col := range s.Resource.Columns {
		cols[i] = fmt.Sprintf("%s.%s", s.Resource.Table, col.Name)
	}

	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), s.Resource.Table)
	sql += s.joinClause()
	sql += s.whereClause()
	sql += " ORDER BY " + s.order

	params := append([]any{}, s.pb.Params()...)
	n := s.pb.Count()
	sql += fmt.Sprintf(" LIMIT %s OFFSET %s", s.dialect.Placeholder(n+1), s.dialect.Placeholder(n+2))
	params = append(params, limit, offset)
	return sql, params
}

// CountSQL renders the scope as a COUNT over the base table.
func (s *Scope) CountSQL() (string, []any) {
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.Resource.Table)
	sql += s.joinClause()
	sql += s.whereClause()
	return sql, append([]any{}, s.pb.Params()...)
}

func (s *Scope) joinClause() string {
	if len(s.joins) == 0 {
		return ""
	}
	return " " + strings.Join(s.joins, " ")
}

func (s *Scope) whereClause() string {
	if len(s.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(s.where, " AND ")
}

// --- search ---

// applySearch ORs a case-insensitive contains predicate across every
// string/text column of the resource and of its concrete belongs_to
// targets (outer-joined so null associations don't drop rows).
func (c *Composer) applySearch(s *Scope, term string) {
	term = strings.TrimSpace(term)
	if term == "" {
		return
	}

	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	ph := s.pb.Add(pattern)

	var predicates []string
	for _, col := range s.Resource.SearchableColumns() {
		predicates = append(predicates, likePredicate(s.Resource.Table, col.Name, ph))
	}

	for _, assoc := range c.registry.AssociationsFor(s.Resource.Name) {
		if !assoc.SearchJoinable() {
			continue
		}
		target := c.registry.GetResource(assoc.Target)
		if target == nil {
			continue
		}
		targetCols := target.SearchableColumns()
		if len(targetCols) == 0 {
			continue
		}

		s.joins = append(s.joins, fmt.Sprintf("LEFT OUTER JOIN %s ON %s.%s = %s.%s",
			target.Table, target.Table, target.PrimaryKey.Column, s.Resource.Table, assoc.ForeignKey))
		for _, col := range targetCols {
			predicates = append(predicates, likePredicate(target.Table, col.Name, ph))
		}
	}

	if len(predicates) > 0 {
		s.where = append(s.where, "("+strings.Join(predicates, " OR ")+")")
	}
}

func likePredicate(table, column, placeholder string) string {
	return fmt.Sprintf(`LOWER(%s.%s) LIKE %s ESCAPE '\'`, table, column, placeholder)
}

// escapeLike neutralizes LIKE metacharacters in a user-supplied term.
func escapeLike(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	term = strings.ReplaceAll(term, "%", `\%`)
	term = strings.ReplaceAll(term, "_", `\_`)
	return term
}

// --- filters ---

func (c *Composer) applyFilters(s *Scope, params map[string]string) {
	if len(params) == 0 {
		return
	}

	for _, def := range c.cache.DefinitionsFor(s.Resource) {
		// Definitions derive from columns, but never trust the
		// attribute name without re-checking it against the schema.
		if !s.Resource.HasColumn(def.Attribute) {
			continue
		}

		switch def.Kind {
		case KindContains:
			c.applyContains(s, def, params)
		case KindNumeric:
			c.applyRange(s, def, params, "_min", "_max", func(raw string) (any, bool) {
				return parseNumeric(raw, def.Type)
			})
		case KindTemporal:
			c.applyRange(s, def, params, "_from", "_to", func(raw string) (any, bool) {
				return parseTemporal(raw, def.Type)
			})
		case KindBoolean:
			c.applyBoolean(s, def, params)
		case KindEnum:
			c.applyEnum(s, def, params)
		}
	}
}

func (c *Composer) applyContains(s *Scope, def FilterDefinition, params map[string]string) {
	value := strings.TrimSpace(params[def.Attribute+"_contains"])
	if value == "" {
		return
	}
	pattern := "%" + escapeLike(strings.ToLower(value)) + "%"
	ph := s.pb.Add(pattern)
	s.where = append(s.where, likePredicate(s.Resource.Table, def.Attribute, ph))
}

func (c *Composer) applyRange(s *Scope, def FilterDefinition, params map[string]string,
	minSuffix, maxSuffix string, parse func(string) (any, bool)) {
	if raw, ok := present(params, def.Attribute+minSuffix); ok {
		if parsed, ok := parse(raw); ok {
			ph := s.pb.Add(parsed)
			s.where = append(s.where, fmt.Sprintf("%s.%s >= %s", s.Resource.Table, def.Attribute, ph))
		} else {
			s.IgnoredParams = append(s.IgnoredParams, def.Attribute+minSuffix)
		}
	}
	if raw, ok := present(params, def.Attribute+maxSuffix); ok {
		if parsed, ok := parse(raw); ok {
			ph := s.pb.Add(parsed)
			s.where = append(s.where, fmt.Sprintf("%s.%s <= %s", s.Resource.Table, def.Attribute, ph))
		} else {
			s.IgnoredParams = append(s.IgnoredParams, def.Attribute+maxSuffix)
		}
	}
}

func (c *Composer) applyBoolean(s *Scope, def FilterDefinition, params map[string]string) {
	raw, ok := present(params, def.Attribute+"_equals")
	if !ok {
		return
	}
	parsed, ok := parseBoolean(raw)
	if !ok {
		s.IgnoredParams = append(s.IgnoredParams, def.Attribute+"_equals")
		return
	}
	ph := s.pb.Add(parsed)
	s.where = append(s.where, fmt.Sprintf("%s.%s = %s", s.Resource.Table, def.Attribute, ph))
}

func (c *Composer) applyEnum(s *Scope, def FilterDefinition, params map[string]string) {
	raw, ok := present(params, def.Attribute+"_equals")
	if !ok {
		return
	}
	for _, option := range def.Options {
		if raw == option {
			ph := s.pb.Add(raw)
			s.where = append(s.where, fmt.Sprintf("%s.%s = %s", s.Resource.Table, def.Attribute, ph))
			return
		}
	}
	s.IgnoredParams = append(s.IgnoredParams, def.Attribute+"_equals")
}

func present(params map[string]string, key string) (string, bool) {
	raw, ok := params[key]
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	return raw, true
}

func parseNumeric(raw, colType string) (any, bool) {
	switch colType {
	case metadata.TypeInteger:
		v, err := strconv.ParseInt(raw, 10, 64)
		return v, err == nil
	case metadata.TypeFloat:
		v, err := strconv.ParseFloat(raw, 64)
		return v, err == nil
	case metadata.TypeDecimal:
		// Validate as arbitrary precision, bind the canonical string so
		// the database compares at full precision.
		r, ok := new(big.Rat).SetString(raw)
		if !ok {
			return nil, false
		}
		return strings.TrimRight(strings.TrimRight(r.FloatString(12), "0"), "."), true
	default:
		return nil, false
	}
}

func parseTemporal(raw, colType string) (any, bool) {
	if colType == metadata.TypeDate {
		t, err := time.Parse("2006-01-02", raw)
		return t, err == nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return nil, false
}

func parseBoolean(raw string) (bool, bool) {
	switch strings.ToLower(raw) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	default:
		return false, false
	}
}

// --- sort ---

// applySort orders by the requested column when it exists, descending
// only for an explicit "desc" token. Anything else falls back to the
// default deterministic order: primary key descending.
func (c *Composer) applySort(s *Scope, column, direction string) {
	table := s.Resource.Table
	pk := s.Resource.PrimaryKey.Column

	column = strings.TrimSpace(column)
	if column == "" || !s.Resource.HasColumn(column) {
		s.order = fmt.Sprintf("%s.%s DESC", table, pk)
		return
	}

	dir := "ASC"
	if strings.EqualFold(strings.TrimSpace(direction), "desc") {
		dir = "DESC"
	}
	if column == pk {
		s.order = fmt.Sprintf("%s.%s %s", table, pk, dir)
		return
	}
	// pk tiebreak keeps batch iteration stable for exports.
	s.order = fmt.Sprintf("%s.%s %s, %s.%s ASC", table, column, dir, table, pk)
}
