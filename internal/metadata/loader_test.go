package metadata

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"steward/internal/store"
)

func TestLoadAll_PopulatesRegistryFromSystemTables(t *testing.T) {
	ctx := context.Background()
	db, err := store.NewMemory(ctx)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()
	if err := db.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	post := &Resource{
		Name:       "post",
		Table:      "posts",
		PrimaryKey: PrimaryKey{Column: "id", Type: TypeUUID},
		Columns: []Column{
			{Name: "id", Type: TypeUUID},
			{Name: "title", Type: TypeString},
			{Name: "author_id", Type: TypeUUID},
		},
	}
	postJSON, _ := json.Marshal(post)
	if _, err := store.Exec(ctx, db.DB,
		"INSERT INTO _resources (name, table_name, definition) VALUES (?1, ?2, ?3)",
		post.Name, post.Table, string(postJSON)); err != nil {
		t.Fatalf("seed resource: %v", err)
	}

	author := &Association{
		Name: "author", Kind: BelongsTo, Source: "post", Target: "user", ForeignKey: "author_id",
	}
	authorJSON, _ := json.Marshal(author)
	if _, err := store.Exec(ctx, db.DB,
		"INSERT INTO _associations (name, source, target, definition) VALUES (?1, ?2, ?3, ?4)",
		author.Name, author.Source, author.Target, string(authorJSON)); err != nil {
		t.Fatalf("seed association: %v", err)
	}

	// A broken definition is skipped with a warning, not fatal.
	if _, err := store.Exec(ctx, db.DB,
		"INSERT INTO _resources (name, table_name, definition) VALUES (?1, ?2, ?3)",
		"broken", "brokens", "{not json"); err != nil {
		t.Fatalf("seed broken resource: %v", err)
	}

	reg := NewRegistry()
	if err := LoadAll(ctx, db, reg, zap.NewNop()); err != nil {
		t.Fatalf("load all: %v", err)
	}

	loaded, err := reg.Resolve("posts")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if loaded.Table != "posts" || len(loaded.Columns) != 3 {
		t.Fatalf("loaded = %+v", loaded)
	}
	if reg.GetResource("broken") != nil {
		t.Fatal("broken definition must be skipped")
	}
	if assoc := reg.Association("post", "author"); assoc == nil || assoc.ForeignKey != "author_id" {
		t.Fatalf("association = %+v", reg.Association("post", "author"))
	}

	// posts has no backing table here; VerifyTables only warns.
	VerifyTables(ctx, db, reg, zap.NewNop())
}
