package repo

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestIdempotency_CreateGetRoundTrip(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	target := "POST /api/v1/sites/7/comments/42/likes"

	rec, err := CreateIdempotency(ctx, db, "u1", target, "key-1", http.StatusAccepted, time.Minute)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.Status != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Status)
	}

	got, err := GetIdempotency(ctx, db, "u1", target, "key-1", time.Now().UTC())
	if err != nil {
		t.Fatalf("GetIdempotency: %v", err)
	}
	if got.ID != rec.ID {
		t.Fatalf("got %s, want %s", got.ID, rec.ID)
	}
}

func TestIdempotency_DuplicateTuple(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	target := "POST /api/v1/sites/7/follows"

	if _, err := CreateIdempotency(ctx, db, "u1", target, "key-1", http.StatusAccepted, time.Minute); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", target, "key-1", http.StatusAccepted, time.Minute); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}

	// Same key against a different target is a distinct tuple.
	if _, err := CreateIdempotency(ctx, db, "u1", "DELETE /api/v1/sites/7/follows", "key-1", http.StatusAccepted, time.Minute); err != nil {
		t.Fatalf("different target: %v", err)
	}
	// And so is the same tuple for a different user.
	if _, err := CreateIdempotency(ctx, db, "u2", target, "key-1", http.StatusAccepted, time.Minute); err != nil {
		t.Fatalf("different user: %v", err)
	}
}

func TestIdempotency_ExpiredRecordNotReturned(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	target := "POST /api/v1/sites/7/comments/42/replies"

	if _, err := CreateIdempotency(ctx, db, "u1", target, "key-1", http.StatusAccepted, time.Millisecond); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "u1", target, "key-1", time.Now().UTC().Add(time.Second)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for expired record", err)
	}
}

func TestIdempotency_BlankTarget(t *testing.T) {
	db := newRepoDB(t)
	if _, err := GetIdempotency(context.Background(), db, "u1", "  ", "key", time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for blank target", err)
	}
}
