package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pawmarket/internal/db/dbtest"
	"pawmarket/internal/domain"
)

func TestPostgres_ItemLifecycle(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.Pool(t)
	repo := NewPostgres(pool, 3, nil)

	if _, err := repo.GetByOwner(ctx, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	now := time.Now().UTC()
	err := repo.WithTx(ctx, func(tx Tx) error {
		c, err := tx.GetOrCreate(ctx, "u1")
		if err != nil {
			return err
		}
		if err := tx.PutItem(ctx, c.ID, domain.CartItem{ProductID: "p1", SupplierID: "s1", Quantity: 2, UnitPriceCents: 100, LastPriceSyncAt: now}); err != nil {
			return err
		}
		return tx.SetTotals(ctx, c.ID, 200, 2)
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	got, err := repo.GetByOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("GetByOwner: %v", err)
	}
	if got.TotalCents != 200 || got.ItemCount != 2 || len(got.Items) != 1 {
		t.Fatalf("unexpected cart %+v", got)
	}

	err = repo.WithTx(ctx, func(tx Tx) error {
		c, err := tx.GetOrCreate(ctx, "u1")
		if err != nil {
			return err
		}
		if c.ID != got.ID {
			t.Fatalf("GetOrCreate created a second cart")
		}
		supplier, err := tx.ActiveSupplier(ctx, c.ID)
		if err != nil {
			return err
		}
		if supplier != "s1" {
			t.Fatalf("active supplier = %q", supplier)
		}
		if err := tx.DeleteAllItems(ctx, c.ID); err != nil {
			return err
		}
		return tx.SetTotals(ctx, c.ID, 0, 0)
	})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}

	got, err = repo.GetByOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("GetByOwner: %v", err)
	}
	if got.TotalCents != 0 || got.ItemCount != 0 || len(got.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", got)
	}
}

func TestPostgres_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.Pool(t)
	repo := NewPostgres(pool, 3, nil)

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.GetOrCreate(ctx, "u2"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := repo.GetByOwner(ctx, "u2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cart should not exist after rollback, got %v", err)
	}
}

func TestPostgres_GetByOwnerReadsOneSnapshot(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.Pool(t)
	repo := NewPostgres(pool, 10, nil)

	put := func(productID string) error {
		return repo.WithTx(ctx, func(tx Tx) error {
			c, err := tx.GetOrCreate(ctx, "u1")
			if err != nil {
				return err
			}
			it := domain.CartItem{ProductID: productID, SupplierID: "s1", Quantity: 1, UnitPriceCents: 100, LastPriceSyncAt: time.Now().UTC()}
			if err := tx.PutItem(ctx, c.ID, it); err != nil {
				return err
			}
			return tx.SetTotals(ctx, c.ID, c.TotalCents+100, c.ItemCount+1)
		})
	}
	if err := put("p0"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 30; i++ {
			if err := put(fmt.Sprintf("p%d", i)); err != nil {
				t.Errorf("put: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 60; i++ {
		c, err := repo.GetByOwner(ctx, "u1")
		if err != nil {
			t.Fatalf("GetByOwner: %v", err)
		}
		total, count := domain.Totals(c.Items)
		if total != c.TotalCents || count != c.ItemCount {
			t.Fatalf("aggregates %d/%d do not match %d lines (%d/%d)", c.TotalCents, c.ItemCount, len(c.Items), total, count)
		}
	}
	wg.Wait()
}
