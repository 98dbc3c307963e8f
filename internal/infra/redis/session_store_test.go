package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/stock-console/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewSessionStore(newTestRedisClient(t), time.Hour)
	if err != nil {
		t.Fatalf("NewSessionStore() error = %v", err)
	}

	created, err := store.Create(ctx, "admin")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" || created.User != "admin" {
		t.Fatalf("Create() = %+v", created)
	}

	created.SelectTable("store")
	created.AddFilter("supplier", "BRAKES")
	if err := store.Save(ctx, created); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.SelectedTable != "store" || len(loaded.Filters["supplier"]) != 1 {
		t.Fatalf("Get() = %+v, want selected store with one filter", loaded)
	}

	if err := store.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestSessionStoreValidation(t *testing.T) {
	t.Parallel()

	store, err := NewSessionStore(newTestRedisClient(t), 0)
	if err != nil {
		t.Fatalf("NewSessionStore() error = %v", err)
	}

	if _, err := store.Create(context.Background(), " "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Create(empty) error = %v, want ErrValidation", err)
	}
	if _, err := store.Get(context.Background(), ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get(empty) error = %v, want ErrNotFound", err)
	}
	if err := store.Save(context.Background(), nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Save(nil) error = %v, want ErrValidation", err)
	}
}
