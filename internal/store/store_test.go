package store

import (
	"path/filepath"
	"testing"

	"carmarket/pkg/domain"
)

// runStoreTests exercises the Store contract against every implementation.
func runStoreTests(t *testing.T, open func(t *testing.T) Store) {
	t.Helper()

	newListing := func(make, model string, year int, price float64) domain.Listing {
		return domain.Listing{Make: make, Model: model, Year: year, Price: price}
	}

	t.Run("create assigns identity", func(t *testing.T) {
		s := open(t)
		created, err := s.CreateListing(newListing("Toyota", "Corolla", 2020, 15000))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if created.ID == "" {
			t.Fatal("expected assigned id")
		}
		if created.Status != domain.StatusActive {
			t.Fatalf("default status = %q, want active", created.Status)
		}
		if created.CreatedAt.IsZero() || !created.UpdatedAt.Equal(created.CreatedAt) {
			t.Fatalf("timestamps: created=%v updated=%v", created.CreatedAt, created.UpdatedAt)
		}

		other, err := s.CreateListing(newListing("Honda", "Civic", 2019, 18000))
		if err != nil {
			t.Fatalf("create second: %v", err)
		}
		if other.ID == created.ID {
			t.Fatal("ids must be unique")
		}
	})

	t.Run("get round trip", func(t *testing.T) {
		s := open(t)
		in := newListing("Toyota", "Corolla", 2020, 15000)
		miles := 42000
		in.Mileage = &miles
		in.Description = "one owner"
		created, err := s.CreateListing(in)
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		got, ok, err := s.GetListing(created.ID)
		if err != nil || !ok {
			t.Fatalf("get: ok=%v err=%v", ok, err)
		}
		if got.Make != "Toyota" || got.Year != 2020 || got.Price != 15000 {
			t.Fatalf("round trip mismatch: %+v", got)
		}
		if got.Mileage == nil || *got.Mileage != 42000 {
			t.Fatalf("mileage mismatch: %v", got.Mileage)
		}

		if _, ok, err := s.GetListing("missing"); err != nil || ok {
			t.Fatalf("missing id: ok=%v err=%v", ok, err)
		}
	})

	t.Run("create rejects invalid rows", func(t *testing.T) {
		s := open(t)
		if _, err := s.CreateListing(newListing("", "Corolla", 2020, 15000)); err == nil {
			t.Fatal("expected error for empty make")
		}
		if _, err := s.CreateListing(newListing("Toyota", "Corolla", 2020, -1)); err == nil {
			t.Fatal("expected error for negative price")
		}
	})

	t.Run("update applies non-nil fields", func(t *testing.T) {
		s := open(t)
		created, err := s.CreateListing(newListing("Toyota", "Corolla", 2020, 15000))
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		price := 9000.0
		updated, ok, err := s.UpdateListing(created.ID, ListingUpdate{Price: &price})
		if err != nil || !ok {
			t.Fatalf("update: ok=%v err=%v", ok, err)
		}
		if updated.Price != 9000 || updated.Make != "Toyota" || updated.Year != 2020 {
			t.Fatalf("update result: %+v", updated)
		}
		if !updated.CreatedAt.Equal(created.CreatedAt) {
			t.Fatal("createdAt must not change on update")
		}
		if updated.UpdatedAt.Before(created.UpdatedAt) {
			t.Fatal("updatedAt must not go backwards")
		}

		if _, ok, err := s.UpdateListing("missing", ListingUpdate{Price: &price}); err != nil || ok {
			t.Fatalf("update missing: ok=%v err=%v", ok, err)
		}

		bad := -5.0
		if _, _, err := s.UpdateListing(created.ID, ListingUpdate{Price: &bad}); err == nil {
			t.Fatal("expected invariant error for negative price")
		}
		got, _, err := s.GetListing(created.ID)
		if err != nil {
			t.Fatalf("get after failed update: %v", err)
		}
		if got.Price != 9000 {
			t.Fatalf("failed update mutated row: price=%v", got.Price)
		}
	})

	t.Run("delete reports existence", func(t *testing.T) {
		s := open(t)
		created, err := s.CreateListing(newListing("Toyota", "Corolla", 2020, 15000))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ok, err := s.DeleteListing(created.ID)
		if err != nil || !ok {
			t.Fatalf("delete: ok=%v err=%v", ok, err)
		}
		ok, err = s.DeleteListing(created.ID)
		if err != nil || ok {
			t.Fatalf("second delete: ok=%v err=%v", ok, err)
		}
		if _, ok, _ := s.GetListing(created.ID); ok {
			t.Fatal("deleted row still readable")
		}
	})

	t.Run("query filters sorts and paginates", func(t *testing.T) {
		s := open(t)
		seed := []domain.Listing{
			newListing("Toyota", "Corolla", 2020, 15000),
			newListing("Toyota", "Camry", 2018, 21000),
			newListing("Honda", "Civic", 2019, 18000),
		}
		for _, l := range seed {
			if _, err := s.CreateListing(l); err != nil {
				t.Fatalf("seed: %v", err)
			}
		}

		items, total, err := s.QueryListings(ListingQuery{Make: "Toyota"})
		if err != nil {
			t.Fatalf("query make: %v", err)
		}
		if total != 2 || len(items) != 2 {
			t.Fatalf("make filter: total=%d items=%d", total, len(items))
		}

		min := 16000.0
		items, total, err = s.QueryListings(ListingQuery{MinPrice: &min, SortBy: SortPrice, SortDir: SortAsc})
		if err != nil {
			t.Fatalf("query price: %v", err)
		}
		if total != 2 || items[0].Price > items[1].Price {
			t.Fatalf("price filter/sort: total=%d items=%+v", total, items)
		}

		items, total, err = s.QueryListings(ListingQuery{SortBy: SortYear, SortDir: SortAsc, Limit: 2, Offset: 2})
		if err != nil {
			t.Fatalf("query page: %v", err)
		}
		if total != 3 || len(items) != 1 || items[0].Year != 2020 {
			t.Fatalf("pagination: total=%d items=%+v", total, items)
		}

		items, _, err = s.QueryListings(ListingQuery{Text: "civ"})
		if err != nil {
			t.Fatalf("query text: %v", err)
		}
		if len(items) != 1 || items[0].Model != "Civic" {
			t.Fatalf("text filter: %+v", items)
		}
	})
}

func TestGormStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		s, err := NewGormStore(filepath.Join(t.TempDir(), "listings.db"))
		if err != nil {
			t.Fatalf("open sqlite store: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestNewGormStoreRequiresPath(t *testing.T) {
	if _, err := NewGormStore(""); err == nil {
		t.Fatal("expected error for empty database path")
	}
}
