package address

import (
	"context"
	"errors"
	"testing"

	"pawmarket/internal/db/dbtest"
	"pawmarket/internal/domain"
)

func TestPostgres_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgres(dbtest.Pool(t), nil)

	created, err := repo.Create(ctx, domain.Address{OwnerID: "u1", FullName: "Mona", City: "Cairo", Zone: " Cairo-East "})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" || created.Zone != "cairo-east" {
		t.Fatalf("unexpected address %+v", created)
	}

	got, err := repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.OwnerID != "u1" {
		t.Fatalf("unexpected owner %q", got.OwnerID)
	}

	if _, err := repo.Create(ctx, domain.Address{ID: created.ID, OwnerID: "u2", Zone: "giza"}); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
