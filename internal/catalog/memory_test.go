package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newCatalog(t *testing.T) (*InMemory, Category) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewInMemory(WithClock(clock.Now), WithAssetBaseURL("https://cdn.example.com/"))
	c, err := s.CreateCategory(context.Background(), CategoryInput{Name: "Home & Garden"})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	return s, c
}

func mustProduct(t *testing.T, s *InMemory, categoryID, name string, price int64, stock int) Product {
	t.Helper()
	in := product(name, price, stock)
	in.CategoryID = &categoryID
	p, err := s.CreateProduct(context.Background(), in)
	if err != nil {
		t.Fatalf("create product %s: %v", name, err)
	}
	return p
}

func TestCategorySlugAndConflicts(t *testing.T) {
	s, c := newCatalog(t)
	if c.Slug != "home-garden" {
		t.Fatalf("unexpected slug %q", c.Slug)
	}
	_, err := s.CreateCategory(context.Background(), CategoryInput{Name: "Home Garden", Slug: "home-garden"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	mustProduct(t, s, c.ID, "Rake", 1500, 3)
	if err := s.DeleteCategory(context.Background(), c.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict deleting non-empty category, got %v", err)
	}
	if _, err := s.GetCategory(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProductValidation(t *testing.T) {
	s, c := newCatalog(t)
	ctx := context.Background()
	if _, err := s.CreateProduct(ctx, ProductInput{}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for empty input, got %v", err)
	}
	bad := "nope"
	in := product("Lamp", 100, 1)
	in.CategoryID = &bad
	if _, err := s.CreateProduct(ctx, in); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown category, got %v", err)
	}
	p := mustProduct(t, s, c.ID, "Lamp", 100, 1)
	negative := int64(-1)
	if _, err := s.UpdateProduct(ctx, p.ID, ProductInput{PriceCents: &negative}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for negative price, got %v", err)
	}
	got, _ := s.GetProduct(ctx, p.ID)
	if got.PriceCents != 100 {
		t.Fatalf("failed update must not modify product, price=%d", got.PriceCents)
	}
}

func TestListProductsFiltersAndPages(t *testing.T) {
	s, c := newCatalog(t)
	ctx := context.Background()
	mustProduct(t, s, c.ID, "Blue Vase", 3000, 1)
	mustProduct(t, s, c.ID, "Red Vase", 1000, 1)
	mustProduct(t, s, c.ID, "Garden Hose", 2000, 1)

	items, total, err := s.ListProducts(ctx, ProductFilter{Search: "vase", Sort: "price"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(items) != 2 || items[0].Name != "Red Vase" {
		t.Fatalf("unexpected search result total=%d items=%+v", total, items)
	}

	items, total, _ = s.ListProducts(ctx, ProductFilter{MinPrice: 1500, MaxPrice: 2500})
	if total != 1 || items[0].Name != "Garden Hose" {
		t.Fatalf("unexpected price filter result %+v", items)
	}

	items, total, _ = s.ListProducts(ctx, ProductFilter{Sort: "-price", Page: 2, PerPage: 2})
	if total != 3 || len(items) != 1 || items[0].Name != "Red Vase" {
		t.Fatalf("unexpected second page total=%d items=%+v", total, items)
	}

	items, _, _ = s.ListProducts(ctx, ProductFilter{Page: 9})
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil page, got %#v", items)
	}
}

func TestSortTiesAreStableAcrossPages(t *testing.T) {
	s, c := newCatalog(t)
	ctx := context.Background()
	var created []string
	for _, name := range []string{"Pot", "Pot", "Pot", "Pot", "Pot"} {
		created = append(created, mustProduct(t, s, c.ID, name, 1000, 1).ID)
	}

	for _, sortBy := range []string{"price", "-price", "name"} {
		for run := 0; run < 20; run++ {
			var seen []string
			for page := 1; page <= 3; page++ {
				items, _, err := s.ListProducts(ctx, ProductFilter{Sort: sortBy, Page: page, PerPage: 2})
				if err != nil {
					t.Fatalf("list: %v", err)
				}
				for _, p := range items {
					seen = append(seen, p.ID)
				}
			}
			if len(seen) != len(created) {
				t.Fatalf("%s: expected %d items across pages, got %d", sortBy, len(created), len(seen))
			}
			for i := range created {
				if seen[i] != created[i] {
					t.Fatalf("%s run %d: ties not ordered by id: %v", sortBy, run, seen)
				}
			}
		}
	}
}

func TestOrderLifecycleAdjustsStock(t *testing.T) {
	s, c := newCatalog(t)
	ctx := context.Background()
	p := mustProduct(t, s, c.ID, "Shovel", 2500, 5)

	o, err := s.CreateOrder(ctx, "u1", []OrderLine{{ProductID: p.ID, Quantity: 2}, {ProductID: p.ID, Quantity: 1}})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if o.TotalCents != 7500 || o.Status != OrderPending || o.Currency != "USD" {
		t.Fatalf("unexpected order %+v", o)
	}
	got, _ := s.GetProduct(ctx, p.ID)
	if got.Stock != 2 {
		t.Fatalf("expected stock 2 after order, got %d", got.Stock)
	}

	if _, err := s.CreateOrder(ctx, "u1", []OrderLine{{ProductID: p.ID, Quantity: 3}}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on insufficient stock, got %v", err)
	}

	if _, err := s.UpdateOrderStatus(ctx, o.ID, OrderPaid); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, err := s.CancelOrder(ctx, o.ID); err != nil {
		t.Fatalf("cancel paid order: %v", err)
	}
	got, _ = s.GetProduct(ctx, p.ID)
	if got.Stock != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got.Stock)
	}
	if _, err := s.CancelOrder(ctx, o.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict cancelling twice, got %v", err)
	}
}

func TestOrderTransitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{OrderPending, OrderPaid, true},
		{OrderPending, OrderShipped, false},
		{OrderPaid, OrderShipped, true},
		{OrderShipped, OrderCancelled, false},
		{OrderShipped, OrderDelivered, true},
		{OrderDelivered, OrderPending, false},
		{OrderCancelled, OrderPaid, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestListOrdersByOwner(t *testing.T) {
	s, c := newCatalog(t)
	ctx := context.Background()
	p := mustProduct(t, s, c.ID, "Seeds", 300, 100)
	first, _ := s.CreateOrder(ctx, "u1", []OrderLine{{ProductID: p.ID, Quantity: 1}})
	second, _ := s.CreateOrder(ctx, "u1", []OrderLine{{ProductID: p.ID, Quantity: 1}})
	_, _ = s.CreateOrder(ctx, "u2", []OrderLine{{ProductID: p.ID, Quantity: 1}})

	orders, total, err := s.ListOrders(ctx, OrderFilter{UserID: "u1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || orders[0].ID != second.ID || orders[1].ID != first.ID {
		t.Fatalf("expected newest first for u1, got %+v", orders)
	}
	_, total, _ = s.ListOrders(ctx, OrderFilter{})
	if total != 3 {
		t.Fatalf("expected 3 orders overall, got %d", total)
	}
}

func TestCreateAsset(t *testing.T) {
	s, _ := newCatalog(t)
	a, err := s.CreateAsset(context.Background(), "u1", AssetInput{Filename: "photo.png", ContentType: "image/png", Size: 42})
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}
	if a.URL != "https://cdn.example.com/"+a.ID+"/photo.png" {
		t.Fatalf("unexpected url %s", a.URL)
	}
	if _, err := s.CreateAsset(context.Background(), "u1", AssetInput{Filename: "../etc/passwd", Size: 1}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for path filename, got %v", err)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	if err := Seed(ctx, s); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := Seed(ctx, s); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	cats, _ := s.ListCategories(ctx)
	_, total, _ := s.ListProducts(ctx, ProductFilter{})
	if len(cats) != 2 || total != 3 {
		t.Fatalf("unexpected seed result categories=%d products=%d", len(cats), total)
	}
}
