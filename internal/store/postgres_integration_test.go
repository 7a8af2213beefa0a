package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func openIntegrationStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("RECRUITCRM_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("RECRUITCRM_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if _, err := ApplyMigrations(ctx, db, repoMigrationsDir()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db)
}

func TestPostgresMigrationsRoundTrip(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()

	name, err := RollbackLatest(ctx, s.DB(), repoMigrationsDir())
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if name == "" {
		t.Fatal("expected a migration to be rolled back")
	}
	applied, err := ApplyMigrations(ctx, s.DB(), repoMigrationsDir())
	if err != nil {
		t.Fatalf("reapply: %v", err)
	}
	if len(applied) != 1 || applied[0] != name {
		t.Fatalf("expected %s reapplied, got %v", name, applied)
	}
}

func TestPostgresUserRoleLookupIsCaseInsensitive(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, User{ID: "usr_1", Email: "Ada@Example.com", Role: "editor"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	record, err := s.LookupRole(ctx, "  ada@example.COM ")
	if err != nil {
		t.Fatalf("lookup role: %v", err)
	}
	if record == nil || record.Role != "editor" {
		t.Fatalf("unexpected record: %+v", record)
	}

	missing, err := s.LookupRole(ctx, "nobody@example.com")
	if err != nil || missing != nil {
		t.Fatalf("expected nil record, got %+v err=%v", missing, err)
	}

	err = s.CreateUser(ctx, User{ID: "usr_2", Email: "ADA@example.com", Role: "viewer"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestPostgresCandidateLifecycle(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()

	inserted, err := s.InsertCandidate(ctx, Candidate{
		ID:                "cand_1",
		FirstName:         "Grace",
		LastName:          "Hopper",
		Skills:            "cobol, compilers",
		WillingToRelocate: true,
		DateAdded:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert candidate: %v", err)
	}
	if !inserted.WillingToRelocate || inserted.FullName() != "Grace Hopper" {
		t.Fatalf("unexpected candidate: %+v", inserted)
	}

	items, err := s.ListCandidates(ctx, 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("list candidates: %v %+v", err, items)
	}

	if err := s.DeleteCandidate(ctx, "cand_1"); err != nil {
		t.Fatalf("delete candidate: %v", err)
	}
	if _, err := s.GetCandidate(ctx, "cand_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !errors.Is(s.DeleteCandidate(ctx, "cand_1"), ErrNotFound) {
		t.Fatal("expected second delete to report not found")
	}
}

func TestPostgresNotificationsReadState(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, User{ID: "usr_1", Email: "a@example.com", Role: "admin"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	for _, id := range []string{"ntf_1", "ntf_2"} {
		if _, err := s.InsertNotification(ctx, Notification{ID: id, UserID: "usr_1", Title: "t", Message: "m"}); err != nil {
			t.Fatalf("insert notification: %v", err)
		}
	}

	ok, err := s.MarkNotificationRead(ctx, "usr_1", "ntf_1")
	if err != nil || !ok {
		t.Fatalf("mark read: ok=%v err=%v", ok, err)
	}
	ok, err = s.MarkNotificationRead(ctx, "usr_1", "ntf_1")
	if err != nil || !ok {
		t.Fatalf("marking a read notification again: ok=%v err=%v", ok, err)
	}
	ok, err = s.MarkNotificationRead(ctx, "usr_1", "ntf_missing")
	if err != nil || ok {
		t.Fatalf("missing notification: ok=%v err=%v", ok, err)
	}
	ok, err = s.MarkNotificationRead(ctx, "usr_other", "ntf_2")
	if err != nil || ok {
		t.Fatalf("foreign user must not mark read: ok=%v err=%v", ok, err)
	}
	count, err := s.UnreadNotificationCount(ctx, "usr_1")
	if err != nil || count != 1 {
		t.Fatalf("unread count = %d err=%v", count, err)
	}
	n, err := s.MarkAllNotificationsRead(ctx, "usr_1")
	if err != nil || n != 1 {
		t.Fatalf("mark all = %d err=%v", n, err)
	}
}

func TestPostgresPasswordResetIsSingleUse(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, User{ID: "usr_1", Email: "a@example.com", Role: "viewer"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreatePasswordReset(ctx, "usr_1", "tok_live", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("create reset: %v", err)
	}
	if err := s.CreatePasswordReset(ctx, "usr_1", "tok_old", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("create expired reset: %v", err)
	}

	const workers = 8
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := s.ConsumePasswordReset(ctx, "tok_live")
			results <- err
		}()
	}
	consumed := 0
	for i := 0; i < workers; i++ {
		err := <-results
		switch {
		case err == nil:
			consumed++
		case !errors.Is(err, ErrNotFound):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if consumed != 1 {
		t.Fatalf("token consumed %d times", consumed)
	}

	if _, err := s.ConsumePasswordReset(ctx, "tok_old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired token: expected not found, got %v", err)
	}
}
