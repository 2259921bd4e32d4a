package database

import (
	"testing"

	"github.com/studybuddy/backend/internal/rooms"
	"github.com/studybuddy/backend/internal/users"
)

func TestOpenSQLiteMigratesSchema(t *testing.T) {
	db, err := OpenSQLite("file:migrate-test?mode=memory&cache=shared", nil)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}

	for _, model := range []any{&users.User{}, &rooms.Room{}, &rooms.StoredMessage{}} {
		if !db.Migrator().HasTable(model) {
			t.Fatalf("expected table for %T", model)
		}
	}
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}
