package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"steward/internal/actor"
	"steward/internal/audit"
	"steward/internal/auth"
	"steward/internal/authz"
	"steward/internal/dashboard"
	"steward/internal/export"
	"steward/internal/metadata"
	"steward/internal/params"
	"steward/internal/policy"
	"steward/internal/query"
	"steward/internal/storage"
	"steward/internal/store"
)

const testSecret = "handler-test-secret"

type testEnv struct {
	app       *fiber.App
	db        *store.Store
	deps      Deps
	generator *export.Generator
}

func superAdmin() *actor.Identity {
	return &actor.Identity{ID: "root-1", Email: "root@example.com", SuperAdmin: true}
}

func injectActor(id *actor.Identity) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(actorLocal, id)
		return c.Next()
	}
}

func newTestEnv(t *testing.T, middleware fiber.Handler) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewMemory(ctx)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(db.Close)
	if err := db.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	if _, err := store.Exec(ctx, db.DB, `CREATE TABLE users (
		id TEXT PRIMARY KEY,
		name TEXT,
		email TEXT,
		role TEXT,
		active INTEGER,
		password_digest TEXT
	)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	for _, row := range [][]any{
		{"u1", "Alice", "alice@example.com", "admin", 1, "x"},
		{"u2", "Bob", "bob@example.com", "member", 1, "x"},
		{"u3", "Charlie", "charlie@example.com", "admin", 0, "x"},
	} {
		if _, err := store.Exec(ctx, db.DB,
			"INSERT INTO users (id, name, email, role, active, password_digest) VALUES (?1, ?2, ?3, ?4, ?5, ?6)",
			row...); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	registry := metadata.NewRegistry()
	registry.Load([]*metadata.Resource{{
		Name:       "user",
		Table:      "users",
		PrimaryKey: metadata.PrimaryKey{Column: "id", Type: metadata.TypeUUID},
		Columns: []metadata.Column{
			{Name: "id", Type: metadata.TypeUUID},
			{Name: "name", Type: metadata.TypeString},
			{Name: "email", Type: metadata.TypeString},
			{Name: "role", Type: metadata.TypeEnum, Enum: []string{"admin", "member"}},
			{Name: "active", Type: metadata.TypeBoolean},
			{Name: "password_digest", Type: metadata.TypeString},
		},
	}}, nil)

	logger := zap.NewNop()
	filter := policy.NewSensitiveFilter()
	pol := policy.New(registry, dashboard.NewRegistry(), filter)
	composer := query.NewComposer(registry, db.Dialect, query.NewDefinitionCache(time.Hour))
	auditLog := audit.NewLog(db, filter, logger, 100, time.Minute)
	t.Cleanup(auditLog.Stop)

	exports := export.NewStore(db)
	backend := storage.NewLocalStorage(t.TempDir())
	generator := export.NewGenerator(exports, db, registry, composer, pol, backend, logger, 100, 7)
	worker := export.NewWorker(generator, logger, 1, 8)

	deps := Deps{
		DB:        db,
		Registry:  registry,
		Composer:  composer,
		Loader:    query.NewLoader(registry, db),
		Counter:   query.NewCounter(registry, db, logger, false, 1),
		Policy:    pol,
		Sanitizer: params.NewSanitizer(registry, pol),
		Adapter:   &authz.DefaultAdapter{},
		Audit:     auditLog,
		Exports:   exports,
		Worker:    worker,
		Storage:   backend,
		Logger:    logger,
	}

	env := newTestEnvWithDeps(t, deps, middleware)
	env.generator = generator
	return env
}

func testErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}
	return c.Status(500).JSON(ErrorResponse{
		Error: NewAppError("INTERNAL", 500, "Internal server error"),
	})
}

// newTestEnvWithDeps builds an app over existing deps, so tests can
// vary one dependency or the acting identity without reseeding.
func newTestEnvWithDeps(t *testing.T, deps Deps, middleware fiber.Handler) *testEnv {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: testErrorHandler})
	RegisterRoutes(app, NewHandler(deps), NewLoginHandler(auth.NewActors(deps.DB), testSecret), middleware)
	return &testEnv{app: app, db: deps.DB, deps: deps}
}

type apiResponse struct {
	Data json.RawMessage `json:"data"`
	Meta map[string]any  `json:"meta"`
	Err  *AppError       `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var parsed apiResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			t.Fatalf("decode body %q: %v", raw, err)
		}
	}
	return resp.StatusCode, parsed
}

func listData(t *testing.T, resp apiResponse) []map[string]any {
	t.Helper()
	var rows []map[string]any
	if err := json.Unmarshal(resp.Data, &rows); err != nil {
		t.Fatalf("decode list data: %v", err)
	}
	return rows
}

func recordData(t *testing.T, resp apiResponse) map[string]any {
	t.Helper()
	var row map[string]any
	if err := json.Unmarshal(resp.Data, &row); err != nil {
		t.Fatalf("decode record data: %v", err)
	}
	return row
}

func TestList_SearchAndFiltersCompose(t *testing.T) {
	env := newTestEnv(t, injectActor(superAdmin()))

	status, resp := env.do(t, "GET", "/admin/users?role_equals=admin", nil)
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	if got := resp.Meta["total"].(float64); got != 2 {
		t.Fatalf("total = %v", got)
	}

	// Search and filter intersect, so an admin search for a member-only
	// name returns nothing.
	status, resp = env.do(t, "GET", "/admin/users?search=bob&role_equals=admin", nil)
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	if rows := listData(t, resp); len(rows) != 0 {
		t.Fatalf("rows = %v", rows)
	}

	status, resp = env.do(t, "GET", "/admin/users?search=ALICE", nil)
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	rows := listData(t, resp)
	if len(rows) != 1 || rows[0]["name"] != "Alice" {
		t.Fatalf("case-insensitive search rows = %v", rows)
	}
}

func TestList_ProjectionHidesCredentialColumns(t *testing.T) {
	env := newTestEnv(t, injectActor(superAdmin()))

	_, resp := env.do(t, "GET", "/admin/users", nil)
	for _, row := range listData(t, resp) {
		if _, ok := row["password_digest"]; ok {
			t.Fatalf("credential column leaked: %v", row)
		}
		if _, ok := row["id"]; !ok {
			t.Fatalf("primary key missing: %v", row)
		}
	}
}

func TestList_SortAndInjectionFallback(t *testing.T) {
	env := newTestEnv(t, injectActor(superAdmin()))

	_, resp := env.do(t, "GET", "/admin/users?role_equals=admin&sort=name&direction=desc", nil)
	rows := listData(t, resp)
	if len(rows) != 2 || rows[0]["name"] != "Charlie" || rows[1]["name"] != "Alice" {
		t.Fatalf("sorted rows = %v", rows)
	}

	// A sort target that is not a real column falls back to primary key
	// descending instead of reaching the database.
	_, resp = env.do(t, "GET", "/admin/users?sort=name;DROP%20TABLE%20users", nil)
	rows = listData(t, resp)
	if len(rows) != 3 || rows[0]["id"] != "u3" || rows[2]["id"] != "u1" {
		t.Fatalf("fallback rows = %v", rows)
	}

	if _, resp = env.do(t, "GET", "/admin/users", nil); len(listData(t, resp)) != 3 {
		t.Fatal("users table disappeared")
	}
}

func TestList_ReportsIgnoredFilterParams(t *testing.T) {
	env := newTestEnv(t, injectActor(superAdmin()))

	_, resp := env.do(t, "GET", "/admin/users?active_equals=banana", nil)
	if got := resp.Meta["total"].(float64); got != 3 {
		t.Fatalf("total = %v, malformed filter must not restrict", got)
	}
	ignored, ok := resp.Meta["ignored_filters"].([]any)
	if !ok || len(ignored) != 1 || ignored[0] != "active_equals" {
		t.Fatalf("ignored_filters = %v", resp.Meta["ignored_filters"])
	}
}

func TestList_PaginationClamps(t *testing.T) {
	env := newTestEnv(t, injectActor(superAdmin()))

	_, resp := env.do(t, "GET", "/admin/users?page=2&per_page=2&sort=id", nil)
	rows := listData(t, resp)
	if len(rows) != 1 || rows[0]["id"] != "u3" {
		t.Fatalf("page 2 rows = %v", rows)
	}
	if got := resp.Meta["per_page"].(float64); got != 2 {
		t.Fatalf("per_page = %v", got)
	}

	_, resp = env.do(t, "GET", "/admin/users?per_page=100000", nil)
	if got := resp.Meta["per_page"].(float64); got != defaultPerPage {
		t.Fatalf("oversized per_page = %v, want default", got)
	}
}

func TestResolveResource_AcceptsVariantsRejectsUnknown(t *testing.T) {
	env := newTestEnv(t, injectActor(superAdmin()))

	for _, name := range []string{"users", "user", "Users"} {
		if status, _ := env.do(t, "GET", "/admin/"+name, nil); status != 200 {
			t.Fatalf("GET /admin/%s status = %d", name, status)
		}
	}

	status, resp := env.do(t, "GET", "/admin/gizmos", nil)
	if status != 404 || resp.Err == nil || resp.Err.Code != "UNKNOWN_RESOURCE" {
		t.Fatalf("status=%d err=%+v", status, resp.Err)
	}
}

func TestShow_ReturnsRecordAndNotFound(t *testing.T) {
	env := newTestEnv(t, injectActor(superAdmin()))

	status, resp := env.do(t, "GET", "/admin/users/u2", nil)
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	row := recordData(t, resp)
	if row["email"] != "bob@example.com" {
		t.Fatalf("row = %v", row)
	}
	if _, ok := resp.Meta["counts"]; !ok {
		t.Fatal("show must carry association counts meta")
	}

	status, resp = env.do(t, "GET", "/admin/users/missing", nil)
	if status != 404 || resp.Err.Code != "NOT_FOUND" {
		t.Fatalf("status=%d err=%+v", status, resp.Err)
	}
}

func TestCreate_GeneratesIDAndDropsForbiddenFields(t *testing.T) {
	env := newTestEnv(t, injectActor(superAdmin()))

	status, resp := env.do(t, "POST", "/admin/users", map[string]any{
		"name":            "Dana",
		"email":           "dana@example.com",
		"role":            "member",
		"password_digest": "sneaky",
		"shoe_size":       44,
	})
	if status != 201 {
		t.Fatalf("status = %d err=%+v", status, resp.Err)
	}
	row := recordData(t, resp)
	id, _ := row["id"].(string)
	if id == "" || id == "sneaky" {
		t.Fatalf("generated id = %v", row["id"])
	}

	stored, err := store.QueryRow(context.Background(), env.db.DB,
		"SELECT password_digest FROM users WHERE id = ?1", id)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored["password_digest"] != nil {
		t.Fatalf("write-protected field persisted: %v", stored["password_digest"])
	}
}

func TestUpdateAndDelete_Lifecycle(t *testing.T) {
	env := newTestEnv(t, injectActor(superAdmin()))

	status, resp := env.do(t, "PUT", "/admin/users/u2", map[string]any{"name": "Robert"})
	if status != 200 {
		t.Fatalf("update status = %d err=%+v", status, resp.Err)
	}
	if row := recordData(t, resp); row["name"] != "Robert" {
		t.Fatalf("row = %v", row)
	}

	if status, _ := env.do(t, "PUT", "/admin/users/missing", map[string]any{"name": "x"}); status != 404 {
		t.Fatalf("update missing status = %d", status)
	}

	if status, _ := env.do(t, "DELETE", "/admin/users/u2", nil); status != 204 {
		t.Fatalf("delete status = %d", status)
	}
	if status, _ := env.do(t, "GET", "/admin/users/u2", nil); status != 404 {
		t.Fatalf("deleted record still visible, status = %d", status)
	}
	if status, _ := env.do(t, "DELETE", "/admin/users/u2", nil); status != 404 {
		t.Fatalf("double delete status = %d", status)
	}
}

func TestFilterDefinitions_Endpoint(t *testing.T) {
	env := newTestEnv(t, injectActor(superAdmin()))

	status, resp := env.do(t, "GET", "/admin/users/filters", nil)
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	var defs []query.FilterDefinition
	if err := json.Unmarshal(resp.Data, &defs); err != nil {
		t.Fatalf("decode definitions: %v", err)
	}

	byAttr := map[string]query.FilterDefinition{}
	for _, def := range defs {
		byAttr[def.Attribute] = def
	}
	if _, ok := byAttr["id"]; ok {
		t.Fatal("primary key must not be filterable")
	}
	if def := byAttr["role"]; def.Kind != query.KindEnum || len(def.Options) != 2 {
		t.Fatalf("role definition = %+v", def)
	}
	if def := byAttr["active"]; def.Kind != query.KindBoolean {
		t.Fatalf("active definition = %+v", def)
	}
}

func TestOverview_CountsAndDegradesBrokenTables(t *testing.T) {
	env := newTestEnv(t, injectActor(superAdmin()))

	// A registered resource whose table is missing must not break the
	// landing page; its count degrades to zero.
	env.deps.Registry.Register(&metadata.Resource{
		Name:       "ghost",
		Table:      "ghosts",
		PrimaryKey: metadata.PrimaryKey{Column: "id", Type: metadata.TypeString},
		Columns:    []metadata.Column{{Name: "id", Type: metadata.TypeString}},
	})

	status, resp := env.do(t, "GET", "/admin/overview", nil)
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	rows := listData(t, resp)
	if len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	byName := map[string]map[string]any{}
	for _, row := range rows {
		byName[row["name"].(string)] = row
	}
	user := byName["user"]
	if user["count"].(float64) != 3 || user["path"] != "/admin/users" || user["label"] != "User" {
		t.Fatalf("user entry = %v", user)
	}
	if byName["ghost"]["count"].(float64) != 0 {
		t.Fatalf("ghost entry = %v", byName["ghost"])
	}
}

func TestOverview_OmitsUnauthorizedResources(t *testing.T) {
	env := newTestEnv(t, injectActor(&actor.Identity{ID: "peon-1"}))

	status, resp := env.do(t, "GET", "/admin/overview", nil)
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	if rows := listData(t, resp); len(rows) != 0 {
		t.Fatalf("denied actor sees %v", rows)
	}
}

func TestAuditLogs_ReadOnlyListing(t *testing.T) {
	env := newTestEnv(t, injectActor(superAdmin()))

	if status, _ := env.do(t, "POST", "/admin/users", map[string]any{
		"name": "Dana", "email": "dana@example.com", "role": "member",
	}); status != 201 {
		t.Fatalf("create status = %d", status)
	}
	if status, _ := env.do(t, "DELETE", "/admin/users/u1", nil); status != 204 {
		t.Fatalf("delete status = %d", status)
	}

	status, resp := env.do(t, "GET", "/admin/audit_logs", nil)
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	entries := listData(t, resp)
	if len(entries) != 2 || resp.Meta["total"].(float64) != 2 {
		t.Fatalf("entries=%v meta=%v", entries, resp.Meta)
	}
	if entries[0]["action"] != "delete" || entries[0]["resource_id"] != "u1" {
		t.Fatalf("newest entry = %v", entries[0])
	}

	_, resp = env.do(t, "GET", "/admin/audit_logs?action_type=create", nil)
	entries = listData(t, resp)
	if len(entries) != 1 || entries[0]["resource_type"] != "user" {
		t.Fatalf("filtered entries = %v", entries)
	}

	_, resp = env.do(t, "GET", "/admin/audit_logs?query=root", nil)
	if resp.Meta["total"].(float64) != 2 {
		t.Fatalf("actor email search meta = %v", resp.Meta)
	}

	// The trail stays behind the super admin flag.
	other := newTestEnvWithDeps(t, env.deps, injectActor(&actor.Identity{ID: "peon-1"}))
	status, resp = other.do(t, "GET", "/admin/audit_logs", nil)
	if status != 403 || resp.Err == nil || resp.Err.Code != "FORBIDDEN" {
		t.Fatalf("status=%d err=%+v", status, resp.Err)
	}
}

func TestAuthorization_DeniesNonSuperAdmin(t *testing.T) {
	env := newTestEnv(t, injectActor(&actor.Identity{ID: "peon-1", Email: "peon@example.com"}))

	status, resp := env.do(t, "GET", "/admin/users", nil)
	if status != 403 || resp.Err == nil || resp.Err.Code != "FORBIDDEN" {
		t.Fatalf("status=%d err=%+v", status, resp.Err)
	}
	if resp.Err.Message == "" {
		t.Fatal("denial must carry a detail message")
	}
}

func TestRequireActor_BearerToken(t *testing.T) {
	env := newTestEnv(t, RequireActor(testSecret))

	req := httptest.NewRequest("GET", "/admin/users", nil)
	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("missing token status = %d", resp.StatusCode)
	}

	token, err := auth.GenerateToken(superAdmin(), testSecret)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	req = httptest.NewRequest("GET", "/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("authenticated status = %d", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/admin/users", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, _ = env.app.Test(req, -1)
	if resp.StatusCode != 401 {
		t.Fatalf("garbage token status = %d", resp.StatusCode)
	}
}

func TestExport_RequestThenDownloadFlow(t *testing.T) {
	env := newTestEnv(t, injectActor(superAdmin()))
	ctx := context.Background()

	status, resp := env.do(t, "POST", "/admin/users/exports", map[string]any{
		"filters":    map[string]string{"role_equals": "admin"},
		"sort":       "name",
		"attributes": []string{"name", "email"},
	})
	if status != 202 {
		t.Fatalf("create status = %d err=%+v", status, resp.Err)
	}
	created := recordData(t, resp)
	token, _ := created["token"].(string)
	if token == "" || created["status"] != string(export.StatusPending) {
		t.Fatalf("created = %v", created)
	}

	// Generation runs out of band; drive it synchronously here.
	job, err := env.deps.Exports.GetByToken(ctx, token)
	if err != nil {
		t.Fatalf("find job: %v", err)
	}
	if err := env.generator.Generate(ctx, job.ID); err != nil {
		t.Fatalf("generate: %v", err)
	}

	status, resp = env.do(t, "GET", "/admin/exports/"+token, nil)
	if status != 200 {
		t.Fatalf("show status = %d", status)
	}
	shown := recordData(t, resp)
	if shown["status"] != string(export.StatusReady) || shown["records_count"].(float64) != 2 {
		t.Fatalf("shown = %v", shown)
	}

	req := httptest.NewRequest("GET", "/admin/exports/"+token+"/download", nil)
	dlResp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer dlResp.Body.Close()
	if dlResp.StatusCode != 200 {
		t.Fatalf("download status = %d", dlResp.StatusCode)
	}
	if ct := dlResp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type = %q", ct)
	}
	body, _ := io.ReadAll(dlResp.Body)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 3 || strings.TrimSpace(lines[0]) != "name,email" {
		t.Fatalf("csv = %q", body)
	}

	if status, _ := env.do(t, "DELETE", "/admin/exports/"+token, nil); status != 204 {
		t.Fatalf("destroy status = %d", status)
	}
	if status, _ := env.do(t, "GET", "/admin/exports/"+token, nil); status != 404 {
		t.Fatalf("destroyed export still visible, status = %d", status)
	}
}

func TestExport_PendingIsNotDownloadable(t *testing.T) {
	env := newTestEnv(t, injectActor(superAdmin()))

	status, resp := env.do(t, "POST", "/admin/users/exports", nil)
	if status != 202 {
		t.Fatalf("create status = %d", status)
	}
	token := recordData(t, resp)["token"].(string)

	status, resp = env.do(t, "GET", "/admin/exports/"+token+"/download", nil)
	if status != 409 || resp.Err.Code != "NOT_READY" {
		t.Fatalf("status=%d err=%+v", status, resp.Err)
	}
}

func TestExport_DownloadWithoutStorageBackend(t *testing.T) {
	env := newTestEnv(t, injectActor(superAdmin()))
	ctx := context.Background()

	status, resp := env.do(t, "POST", "/admin/users/exports", nil)
	if status != 202 {
		t.Fatalf("create status = %d", status)
	}
	token := recordData(t, resp)["token"].(string)
	job, err := env.deps.Exports.GetByToken(ctx, token)
	if err != nil {
		t.Fatalf("find job: %v", err)
	}
	if err := env.generator.Generate(ctx, job.ID); err != nil {
		t.Fatalf("generate: %v", err)
	}

	// A ready export served by a deployment with no file storage must
	// refuse the download instead of crashing.
	deps := env.deps
	deps.Storage = nil
	bare := newTestEnvWithDeps(t, deps, injectActor(superAdmin()))
	status, resp = bare.do(t, "GET", "/admin/exports/"+token+"/download", nil)
	if status != 409 || resp.Err == nil || resp.Err.Code != "NOT_READY" {
		t.Fatalf("status=%d err=%+v", status, resp.Err)
	}
}

func TestExport_RefusedEnqueueFailsTheJob(t *testing.T) {
	env := newTestEnv(t, injectActor(superAdmin()))
	env.deps.Worker.Stop()

	status, resp := env.do(t, "POST", "/admin/users/exports", nil)
	if status != 503 || resp.Err == nil || resp.Err.Code != "EXPORT_UNAVAILABLE" {
		t.Fatalf("status=%d err=%+v", status, resp.Err)
	}

	// The job must not linger pending with nothing to pick it up.
	jobs, err := env.deps.Exports.List(context.Background(), superAdmin().ID)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != export.StatusFailed {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestExport_OwnershipHidesForeignJobs(t *testing.T) {
	env := newTestEnv(t, injectActor(&actor.Identity{ID: "peon-1", SuperAdmin: true}))

	job, err := env.deps.Exports.Create(context.Background(), "someone-else", "user", "users",
		export.Snapshot{}, nil)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	other := newTestEnvActorSwap(t, env, &actor.Identity{ID: "peon-2"})
	if status, _ := other.do(t, "GET", "/admin/exports/"+job.Token, nil); status != 404 {
		t.Fatalf("foreign export visible, status = %d", status)
	}
}

// newTestEnvActorSwap reuses the env's deps behind a different actor.
func newTestEnvActorSwap(t *testing.T, env *testEnv, id *actor.Identity) *testEnv {
	t.Helper()
	swapped := newTestEnvWithDeps(t, env.deps, injectActor(id))
	swapped.generator = env.generator
	return swapped
}

func TestLogin_IssuesUsableToken(t *testing.T) {
	env := newTestEnv(t, RequireActor(testSecret))
	ctx := context.Background()

	actors := auth.NewActors(env.db)
	if _, err := actors.Create(ctx, "ops@example.com", "s3cret", []string{"ops"}, true); err != nil {
		t.Fatalf("create actor: %v", err)
	}

	status, resp := env.do(t, "POST", "/admin/login", map[string]any{
		"email": "ops@example.com", "password": "wrong",
	})
	if status != 401 {
		t.Fatalf("bad password status = %d err=%+v", status, resp.Err)
	}

	payload, _ := json.Marshal(map[string]any{"email": "ops@example.com", "password": "s3cret"})
	req := httptest.NewRequest("POST", "/admin/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	loginResp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer loginResp.Body.Close()
	if loginResp.StatusCode != 200 {
		t.Fatalf("login status = %d", loginResp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
		Actor struct {
			Email      string `json:"email"`
			SuperAdmin bool   `json:"super_admin"`
		} `json:"actor"`
	}
	if err := json.NewDecoder(loginResp.Body).Decode(&body); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if body.Token == "" || body.Actor.Email != "ops@example.com" || !body.Actor.SuperAdmin {
		t.Fatalf("login body = %+v", body)
	}

	req = httptest.NewRequest("GET", "/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	resp2, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("authenticated request: %v", err)
	}
	if resp2.StatusCode != 200 {
		t.Fatalf("token from login rejected, status = %d", resp2.StatusCode)
	}
}

