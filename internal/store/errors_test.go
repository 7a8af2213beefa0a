package store

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify(t *testing.T) {
	if classify(nil) != nil {
		t.Fatal("classify(nil) should be nil")
	}

	notFound := classify(fmt.Errorf("get user: %w", sql.ErrNoRows))
	if !errors.Is(notFound, ErrNotFound) || !errors.Is(notFound, sql.ErrNoRows) {
		t.Fatalf("expected ErrNotFound wrapping sql.ErrNoRows, got %v", notFound)
	}

	conflict := classify(fmt.Errorf("insert user: %w", &pgconn.PgError{Code: "23505", Message: "duplicate key"}))
	if !errors.Is(conflict, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", conflict)
	}

	other := errors.New("connection reset")
	if got := classify(other); got != other {
		t.Fatalf("unexpected rewrap of %v", got)
	}

	fk := classify(&pgconn.PgError{Code: "23503"})
	if errors.Is(fk, ErrConflict) {
		t.Fatal("foreign key violation must not map to ErrConflict")
	}
}
