package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"steward/internal/actor"
	"steward/internal/store"
)

// ErrInvalidCredentials covers both unknown email and wrong password,
// so login failures don't reveal which one it was.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Actors reads and writes admin accounts in _actors.
type Actors struct {
	db *store.Store
}

func NewActors(db *store.Store) *Actors {
	return &Actors{db: db}
}

// Authenticate checks an email/password pair and returns the actor on
// success.
func (a *Actors) Authenticate(ctx context.Context, email, password string) (*actor.Identity, error) {
	pb := a.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"SELECT id, email, password_digest, roles, super_admin FROM _actors WHERE email = %s",
		pb.Add(email))

	row, err := store.QueryRow(ctx, a.db.DB, sqlStr, pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	digest, _ := row["password_digest"].(string)
	if !CheckPassword(password, digest) {
		return nil, ErrInvalidCredentials
	}
	return rowToIdentity(a.db, row)
}

// Create inserts an admin account. Used for seeding and by the actors
// admin surface.
func (a *Actors) Create(ctx context.Context, email, password string, roles []string, superAdmin bool) (*actor.Identity, error) {
	digest, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	pb := a.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"INSERT INTO _actors (id, email, password_digest, roles, super_admin) VALUES (%s, %s, %s, %s, %s)",
		pb.Add(id), pb.Add(email), pb.Add(digest), pb.Add(a.db.Dialect.ArrayParam(roles)), pb.Add(superAdmin))

	if _, err := store.Exec(ctx, a.db.DB, sqlStr, pb.Params()...); err != nil {
		return nil, a.db.Dialect.MapError(err)
	}
	return &actor.Identity{ID: id, Email: email, Roles: roles, SuperAdmin: superAdmin}, nil
}

// Find loads an actor by id.
func (a *Actors) Find(ctx context.Context, id string) (*actor.Identity, error) {
	pb := a.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT id, email, roles, super_admin FROM _actors WHERE id = %s", pb.Add(id))
	row, err := store.QueryRow(ctx, a.db.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, err
	}
	return rowToIdentity(a.db, row)
}

func rowToIdentity(db *store.Store, row map[string]any) (*actor.Identity, error) {
	roles, err := db.Dialect.ScanArray(row["roles"])
	if err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}

	superAdmin := false
	switch v := row["super_admin"].(type) {
	case bool:
		superAdmin = v
	case int64:
		superAdmin = v != 0
	}

	return &actor.Identity{
		ID:         fmt.Sprintf("%v", row["id"]),
		Email:      fmt.Sprintf("%v", row["email"]),
		Roles:      roles,
		SuperAdmin: superAdmin,
	}, nil
}
