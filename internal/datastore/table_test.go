package datastore

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/hitoshi/skillstack/internal/model"
)

const userColumns = "id, email, password_hash, name, created_at"

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres"), DefaultRegistry), mock
}

func userRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "password_hash", "name", "created_at"}).
		AddRow(int64(1), "alice@example.com", "$2a$12$hash", "Alice", now)
}

func TestRegistry_Lookup(t *testing.T) {
	e, err := DefaultRegistry.Lookup("User")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Table != "users" {
		t.Errorf("Table = %q, want %q", e.Table, "users")
	}

	_, err = DefaultRegistry.Lookup("widgets")
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
}

func TestOpen_UnknownEntity(t *testing.T) {
	store, _ := newMockStore(t)
	if _, err := Open[model.User](store, "nope"); err == nil {
		t.Fatal("expected error for unknown entity")
	}
}

func TestTable_Create(t *testing.T) {
	store, mock := newMockStore(t)
	users := MustOpen[model.User](store, "user")
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO users (email, password_hash, name) VALUES ($1, $2, $3) RETURNING " + userColumns).
		WithArgs("alice@example.com", "$2a$12$hash", "Alice").
		WillReturnRows(userRows(now))

	u, err := users.Create(context.Background(), Values{
		"name":          "Alice",
		"email":         "alice@example.com",
		"password_hash": "$2a$12$hash",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != 1 || u.Email != "alice@example.com" || !u.CreatedAt.Equal(now) {
		t.Errorf("unexpected user: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestTable_Create_RejectsUnknownAndReadOnlyColumns(t *testing.T) {
	store, mock := newMockStore(t)
	users := MustOpen[model.User](store, "user")

	tests := []struct {
		name string
		data Values
	}{
		{"unknown column", Values{"email": "a@example.com", "is_admin": true}},
		{"read-only column", Values{"id": 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := users.Create(context.Background(), tt.data)
			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
		})
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no query should be issued: %v", err)
	}
}

func TestTable_Create_UniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	users := MustOpen[model.User](store, "user")

	mock.ExpectQuery("INSERT INTO users (email) VALUES ($1) RETURNING " + userColumns).
		WithArgs("alice@example.com").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	_, err := users.Create(context.Background(), Values{"email": "alice@example.com"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestTable_FindFirst(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name  string
		where Where
		query string
		args  []any
	}{
		{
			name:  "literal equality",
			where: Where{"email": "alice@example.com"},
			query: "SELECT " + userColumns + " FROM users WHERE email = $1 ORDER BY id ASC LIMIT 1",
			args:  []any{"alice@example.com"},
		},
		{
			name:  "explicit equals",
			where: Where{"email": Equals("alice@example.com")},
			query: "SELECT " + userColumns + " FROM users WHERE email = $1 ORDER BY id ASC LIMIT 1",
			args:  []any{"alice@example.com"},
		},
		{
			name:  "equals operator object",
			where: Where{"email": map[string]any{"equals": "alice@example.com"}},
			query: "SELECT " + userColumns + " FROM users WHERE email = $1 ORDER BY id ASC LIMIT 1",
			args:  []any{"alice@example.com"},
		},
		{
			name:  "contains operator object",
			where: Where{"name": map[string]any{"contains": "Ali"}, "id": 1},
			query: "SELECT " + userColumns + " FROM users WHERE id = $1 AND strpos(name, $2) > 0 ORDER BY id ASC LIMIT 1",
			args:  []any{1, "Ali"},
		},
		{
			name:  "no filter",
			where: nil,
			query: "SELECT " + userColumns + " FROM users ORDER BY id ASC LIMIT 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			users := MustOpen[model.User](store, "user")

			exp := mock.ExpectQuery(tt.query)
			if len(tt.args) > 0 {
				exp = exp.WithArgs(toDriverArgs(tt.args)...)
			}
			exp.WillReturnRows(userRows(now))

			u, err := users.FindFirst(context.Background(), tt.where)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if u == nil || u.Name != "Alice" {
				t.Errorf("unexpected result: %+v", u)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestTable_FindFirst_NotFoundReturnsNil(t *testing.T) {
	store, mock := newMockStore(t)
	users := MustOpen[model.User](store, "user")

	mock.ExpectQuery("SELECT " + userColumns + " FROM users WHERE email = $1 ORDER BY id ASC LIMIT 1").
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "name", "created_at"}))

	u, err := users.FindFirst(context.Background(), Where{"email": "ghost@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != nil {
		t.Errorf("expected nil, got %+v", u)
	}
}

func TestTable_FindFirst_NilMeansIsNull(t *testing.T) {
	store, mock := newMockStore(t)
	types := MustOpen[model.ResourceType](store, "resourcetype")

	mock.ExpectQuery("SELECT id, user_id, name, created_at FROM resource_types WHERE user_id IS NULL ORDER BY id ASC LIMIT 1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "created_at"}))

	if _, err := types.FindFirst(context.Background(), Where{"user_id": nil}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestTable_FindFirst_InvalidFilters(t *testing.T) {
	tests := []struct {
		name  string
		where Where
	}{
		{"unknown column", Where{"password": "x"}},
		{"contains on integer column", Where{"id": Contains("1")}},
		{"unsupported operator", Where{"email": map[string]any{"startswith": "a"}}},
		{"multiple operators", Where{"email": map[string]any{"equals": "a", "contains": "b"}}},
		{"contains with non-string", Where{"email": map[string]any{"contains": 42}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			users := MustOpen[model.User](store, "user")

			_, err := users.FindFirst(context.Background(), tt.where)
			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("no query should be issued: %v", err)
			}
		})
	}
}

func TestTable_FindMany(t *testing.T) {
	store, mock := newMockStore(t)
	types := MustOpen[model.ResourceType](store, "resourcetype")
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, user_id, name, created_at FROM resource_types WHERE user_id = $1 ORDER BY id ASC").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "created_at"}).
			AddRow(int64(1), int64(7), "Course", now).
			AddRow(int64(2), int64(7), "Video", now))

	got, err := types.FindMany(context.Background(), Where{"user_id": int64(7)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Course" || got[1].Name != "Video" {
		t.Errorf("unexpected rows: %+v", got)
	}
}

func TestTable_FindMany_EmptyIsNotNil(t *testing.T) {
	store, mock := newMockStore(t)
	types := MustOpen[model.ResourceType](store, "resourcetype")

	mock.ExpectQuery("SELECT id, user_id, name, created_at FROM resource_types WHERE user_id = $1 ORDER BY id ASC").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "created_at"}))

	got, err := types.FindMany(context.Background(), Where{"user_id": int64(7)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestTable_Update_ByPrimaryKey(t *testing.T) {
	store, mock := newMockStore(t)
	types := MustOpen[model.ResourceType](store, "resourcetype")
	now := time.Now().UTC()

	mock.ExpectQuery("UPDATE resource_types SET name = $1 WHERE id = $2 AND user_id = $3 RETURNING id, user_id, name, created_at").
		WithArgs("Book", int64(3), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "created_at"}).
			AddRow(int64(3), int64(7), "Book", now))

	got, err := types.Update(context.Background(),
		Where{"id": int64(3), "user_id": int64(7)},
		Values{"name": "Book"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Name != "Book" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestTable_Update_ByFirstMatch(t *testing.T) {
	store, mock := newMockStore(t)
	users := MustOpen[model.User](store, "user")
	now := time.Now().UTC()

	mock.ExpectQuery("UPDATE users SET name = $1 WHERE id = (SELECT id FROM users WHERE email = $2 ORDER BY id ASC LIMIT 1) RETURNING " + userColumns).
		WithArgs("Alice", "alice@example.com").
		WillReturnRows(userRows(now))

	got, err := users.Update(context.Background(), Where{"email": "alice@example.com"}, Values{"name": "Alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected updated row")
	}
}

func TestTable_Update_TouchesUpdatedAt(t *testing.T) {
	store, mock := newMockStore(t)
	resources := MustOpen[model.Resource](store, "resources")

	mock.ExpectQuery("UPDATE resources SET notes = $1, updated_at = now() WHERE id = $2 RETURNING " + resources.Entity().SelectList()).
		WithArgs("read chapter 3", int64(5)).
		WillReturnRows(sqlmock.NewRows(columnNames(resources.Entity())))

	got, err := resources.Update(context.Background(), Where{"id": int64(5)}, Values{"notes": "read chapter 3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing row, got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestTable_Update_MissingIDReturnsNil(t *testing.T) {
	store, mock := newMockStore(t)
	users := MustOpen[model.User](store, "user")

	mock.ExpectQuery("UPDATE users SET name = $1 WHERE id = $2 RETURNING " + userColumns).
		WithArgs("Bob", int64(999)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "name", "created_at"}))

	got, err := users.Update(context.Background(), Where{"id": int64(999)}, Values{"name": "Bob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestTable_Update_Rejects(t *testing.T) {
	store, _ := newMockStore(t)
	users := MustOpen[model.User](store, "user")

	tests := []struct {
		name  string
		where Where
		data  Values
	}{
		{"empty data", Where{"id": 1}, Values{}},
		{"empty where", Where{}, Values{"name": "x"}},
		{"read-only column", Where{"id": 1}, Values{"created_at": time.Now()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := users.Update(context.Background(), tt.where, tt.data)
			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
		})
	}
}

func TestTable_Delete(t *testing.T) {
	store, mock := newMockStore(t)
	users := MustOpen[model.User](store, "user")
	now := time.Now().UTC()

	mock.ExpectQuery("DELETE FROM users WHERE id = $1 RETURNING " + userColumns).
		WithArgs(int64(1)).
		WillReturnRows(userRows(now))

	got, err := users.Delete(context.Background(), Where{"id": int64(1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.ID != 1 {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestTable_Delete_ForeignKeyViolation(t *testing.T) {
	store, mock := newMockStore(t)
	types := MustOpen[model.ResourceType](store, "resourcetype")

	mock.ExpectQuery("DELETE FROM resource_types WHERE id = $1 RETURNING id, user_id, name, created_at").
		WithArgs(int64(3)).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "resources_resource_type_id_fkey"})

	_, err := types.Delete(context.Background(), Where{"id": int64(3)})
	if !errors.Is(err, ErrReferenced) {
		t.Fatalf("expected ErrReferenced, got %v", err)
	}
}

func TestStore_InTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery("DELETE FROM users WHERE id = $1 RETURNING " + userColumns).
			WithArgs(int64(1)).
			WillReturnRows(userRows(time.Now()))
		mock.ExpectCommit()

		err := store.InTx(context.Background(), func(tx *Store) error {
			_, err := MustOpen[model.User](tx, "user").Delete(context.Background(), Where{"id": int64(1)})
			return err
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		sentinel := errors.New("boom")
		err := store.InTx(context.Background(), func(tx *Store) error { return sentinel })
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected sentinel error, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})
}

func columnNames(e *Entity) []string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Name
	}
	return names
}

func toDriverArgs(args []any) []driver.Value {
	out := make([]driver.Value, len(args))
	for i, a := range args {
		if n, ok := a.(int); ok {
			out[i] = int64(n)
			continue
		}
		out[i] = a
	}
	return out
}
