package query

import (
	"strings"
	"testing"
	"time"

	"steward/internal/metadata"
	"steward/internal/store"
)

func composerFixture() (*Composer, *metadata.Registry) {
	reg := metadata.NewRegistry()
	reg.Load([]*metadata.Resource{
		{
			Name:       "user",
			Table:      "users",
			PrimaryKey: metadata.PrimaryKey{Column: "id", Type: metadata.TypeUUID},
			Columns: []metadata.Column{
				{Name: "id", Type: metadata.TypeUUID},
				{Name: "name", Type: metadata.TypeString},
				{Name: "email", Type: metadata.TypeString},
				{Name: "role", Type: metadata.TypeString, Enum: []string{"admin", "editor"}},
				{Name: "age", Type: metadata.TypeInteger},
				{Name: "balance", Type: metadata.TypeDecimal},
				{Name: "active", Type: metadata.TypeBoolean},
				{Name: "joined_at", Type: metadata.TypeDatetime},
			},
		},
		{
			Name:       "team",
			Table:      "teams",
			PrimaryKey: metadata.PrimaryKey{Column: "id", Type: metadata.TypeUUID},
			Columns: []metadata.Column{
				{Name: "id", Type: metadata.TypeUUID},
				{Name: "title", Type: metadata.TypeString},
			},
		},
	}, []*metadata.Association{
		{Name: "team", Kind: metadata.BelongsTo, Source: "user", Target: "team", ForeignKey: "team_id"},
	})

	c := NewComposer(reg, &store.SQLiteDialect{}, NewDefinitionCache(time.Hour))
	return c, reg
}

func scopeSQL(t *testing.T, c *Composer, req ListRequest) (string, []any) {
	t.Helper()
	res := c.registry.GetResource("user")
	return c.Scope(res, req).SelectSQL(25, 0)
}

func TestScope_SearchSpansOwnAndAssociatedColumns(t *testing.T) {
	c, _ := composerFixture()

	sql, params := scopeSQL(t, c, ListRequest{Search: "Alice"})

	if !strings.Contains(sql, "LEFT OUTER JOIN teams ON teams.id = users.team_id") {
		t.Fatalf("missing association join: %s", sql)
	}
	for _, pred := range []string{
		`LOWER(users.name) LIKE ?1 ESCAPE '\'`,
		`LOWER(users.email) LIKE ?1 ESCAPE '\'`,
		`LOWER(teams.title) LIKE ?1 ESCAPE '\'`,
	} {
		if !strings.Contains(sql, pred) {
			t.Fatalf("missing predicate %q in %s", pred, sql)
		}
	}
	if !strings.Contains(sql, " OR ") {
		t.Fatalf("search predicates must be OR-combined: %s", sql)
	}
	if params[0] != "%alice%" {
		t.Fatalf("search param = %v, want %%alice%%", params[0])
	}
}

func TestScope_SearchEscapesLikeMetacharacters(t *testing.T) {
	c, _ := composerFixture()

	_, params := scopeSQL(t, c, ListRequest{Search: `50%_off\now`})
	if params[0] != `%50\%\_off\\now%` {
		t.Fatalf("escaped pattern = %v", params[0])
	}
}

func TestScope_FiltersCombineWithAND(t *testing.T) {
	c, _ := composerFixture()

	sql, _ := scopeSQL(t, c, ListRequest{
		Search:  "alice",
		Filters: map[string]string{"role_equals": "admin", "age_min": "30"},
	})

	for _, pred := range []string{"users.role = ", "users.age >= "} {
		if !strings.Contains(sql, pred) {
			t.Fatalf("missing filter predicate %q: %s", pred, sql)
		}
	}
	if strings.Count(sql, " AND ") < 2 {
		t.Fatalf("search and filters must AND together: %s", sql)
	}
}

func TestScope_MalformedFilterValuesAreIgnoredAndReported(t *testing.T) {
	c, _ := composerFixture()
	res := c.registry.GetResource("user")

	scope := c.Scope(res, ListRequest{Filters: map[string]string{
		"age_min":          "not-a-number",
		"age_max":          "40",
		"joined_at_from":   "yesterday",
		"active_equals":    "maybe",
		"role_equals":      "superuser", // not a declared enum key
		"balance_min":      "12.50",
		"unknown_contains": "x",
	}})

	sql, _ := scope.SelectSQL(25, 0)
	if strings.Contains(sql, "users.age >= ") {
		t.Fatalf("malformed age_min leaked into SQL: %s", sql)
	}
	if !strings.Contains(sql, "users.age <= ") {
		t.Fatalf("well-formed age_max missing: %s", sql)
	}
	if !strings.Contains(sql, "users.balance >= ") {
		t.Fatalf("decimal filter missing: %s", sql)
	}

	ignored := map[string]bool{}
	for _, key := range scope.IgnoredParams {
		ignored[key] = true
	}
	for _, key := range []string{"age_min", "joined_at_from", "active_equals", "role_equals"} {
		if !ignored[key] {
			t.Errorf("expected %s in IgnoredParams, got %v", key, scope.IgnoredParams)
		}
	}
}

func TestScope_BooleanVocabulary(t *testing.T) {
	c, _ := composerFixture()
	res := c.registry.GetResource("user")

	for raw, want := range map[string]any{"true": true, "1": true, "yes": true, "false": false, "0": false, "no": false} {
		scope := c.Scope(res, ListRequest{Filters: map[string]string{"active_equals": raw}})
		_, params := scope.SelectSQL(25, 0)
		// limit and offset trail the filter param
		if len(params) != 3 || params[0] != want {
			t.Errorf("active_equals=%q bound %v, want %v", raw, params, want)
		}
	}
}

func TestScope_DecimalFiltersBindCanonicalStrings(t *testing.T) {
	c, _ := composerFixture()
	res := c.registry.GetResource("user")

	scope := c.Scope(res, ListRequest{Filters: map[string]string{"balance_min": "010.500"}})
	_, params := scope.SelectSQL(25, 0)
	if params[0] != "10.5" {
		t.Fatalf("decimal bound as %v, want canonical \"10.5\"", params[0])
	}
}

func TestScope_SortValidColumnWithPrimaryKeyTiebreak(t *testing.T) {
	c, _ := composerFixture()

	sql, _ := scopeSQL(t, c, ListRequest{Sort: "name", Direction: "DESC"})
	if !strings.Contains(sql, "ORDER BY users.name DESC, users.id ASC") {
		t.Fatalf("sort clause wrong: %s", sql)
	}

	sql, _ = scopeSQL(t, c, ListRequest{Sort: "name", Direction: "sideways"})
	if !strings.Contains(sql, "ORDER BY users.name ASC") {
		t.Fatalf("unknown direction must fall back to ASC: %s", sql)
	}
}

func TestScope_SortFallsBackOnUnknownColumn(t *testing.T) {
	c, _ := composerFixture()

	for _, sort := range []string{"", "nonexistent", "name; DROP TABLE users", "users.name"} {
		sql, _ := scopeSQL(t, c, ListRequest{Sort: sort})
		if !strings.Contains(sql, "ORDER BY users.id DESC") {
			t.Fatalf("Sort=%q should fall back to pk DESC: %s", sort, sql)
		}
		if strings.Contains(sql, "DROP TABLE") {
			t.Fatalf("sort input leaked into SQL: %s", sql)
		}
	}
}

func TestScope_PaginationPlaceholdersFollowFilterParams(t *testing.T) {
	c, _ := composerFixture()
	res := c.registry.GetResource("user")

	scope := c.Scope(res, ListRequest{Search: "x", Filters: map[string]string{"age_min": "30"}})
	sql, params := scope.SelectSQL(10, 20)
	if !strings.Contains(sql, "LIMIT ?3 OFFSET ?4") {
		t.Fatalf("pagination placeholders wrong: %s", sql)
	}
	if params[len(params)-2] != 10 || params[len(params)-1] != 20 {
		t.Fatalf("pagination params wrong: %v", params)
	}
}

func TestScope_CountSharesPredicatesWithoutPagination(t *testing.T) {
	c, _ := composerFixture()
	res := c.registry.GetResource("user")

	scope := c.Scope(res, ListRequest{Search: "x"})
	sql, params := scope.CountSQL()
	if !strings.HasPrefix(sql, "SELECT COUNT(*) FROM users") {
		t.Fatalf("count sql wrong: %s", sql)
	}
	if strings.Contains(sql, "LIMIT") || strings.Contains(sql, "ORDER BY") {
		t.Fatalf("count must not page or order: %s", sql)
	}
	if len(params) != 1 {
		t.Fatalf("count params = %v", params)
	}
}

func TestScope_NarrowAddsEqualityOnKnownColumnsOnly(t *testing.T) {
	c, _ := composerFixture()
	res := c.registry.GetResource("user")

	scope := c.Scope(res, ListRequest{}).Narrow("role", "editor").Narrow("shoe_size", 44)
	sql, params := scope.SelectSQL(25, 0)
	if !strings.Contains(sql, "users.role = ?1") {
		t.Fatalf("missing narrow predicate: %s", sql)
	}
	if strings.Contains(sql, "shoe_size") {
		t.Fatalf("unknown column must be ignored: %s", sql)
	}
	if params[0] != "editor" {
		t.Fatalf("narrow param = %v", params[0])
	}
}
