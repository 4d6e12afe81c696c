package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/storefront-kit/storefront/cache"
	"github.com/storefront-kit/storefront/cache/memory"
	"github.com/storefront-kit/storefront/event"
)

type fakeStore struct {
	mu       sync.Mutex
	products map[string]Product
	gets     int
	failing  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{products: make(map[string]Product)}
}

var errStoreDown = errors.New("store down")

func (s *fakeStore) GetProduct(ctx context.Context, id string) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.failing {
		return Product{}, errStoreDown
	}
	product, ok := s.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return product, nil
}

func (s *fakeStore) ListProducts(ctx context.Context, limit, offset int) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errStoreDown
	}
	products := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	return products, nil
}

func (s *fakeStore) CreateProduct(ctx context.Context, product Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStoreDown
	}
	s.products[product.ID] = product
	return nil
}

func (s *fakeStore) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return Product{}, errStoreDown
	}
	product, ok := s.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	if patch.Name != nil {
		product.Name = *patch.Name
	}
	if patch.Description != nil {
		product.Description = *patch.Description
	}
	if patch.Price != nil {
		product.Price = *patch.Price
	}
	if patch.Category != nil {
		product.Category = *patch.Category
	}
	if patch.InventoryCount != nil {
		product.InventoryCount = *patch.InventoryCount
	}
	product.UpdatedAt = time.Now().UTC()
	s.products[id] = product
	return product, nil
}

func (s *fakeStore) DeleteProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStoreDown
	}
	if _, ok := s.products[id]; !ok {
		return ErrProductNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *fakeStore) SearchProducts(ctx context.Context, query string, limit, offset int) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errStoreDown
	}
	var matched []Product
	needle := strings.ToLower(query)
	for _, p := range s.products {
		if strings.Contains(strings.ToLower(p.Name), needle) ||
			strings.Contains(strings.ToLower(p.Description), needle) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

func (s *fakeStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

type capturePublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *capturePublisher) Publish(ctx context.Context, ev event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) last() (event.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return event.Event{}, false
	}
	return p.events[len(p.events)-1], true
}

func newTestService(t *testing.T, c *cache.Cache) (*Service, *fakeStore, *capturePublisher) {
	t.Helper()
	store := newFakeStore()
	publisher := &capturePublisher{}
	if c == nil {
		c = cache.New(context.Background(), memory.NewStore())
	}
	svc, err := NewService(ServiceConfig{
		Store:  store,
		Cache:  c,
		Events: publisher,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc, store, publisher
}

func createProduct(t *testing.T, svc *Service) Product {
	t.Helper()
	product, err := svc.CreateProduct(context.Background(), ProductCreate{
		Name:           "Mechanical Keyboard",
		Description:    "Clicky switches",
		Price:          129.99,
		Category:       "peripherals",
		InventoryCount: 10,
	})
	if err != nil {
		t.Fatalf("CreateProduct() error = %v", err)
	}
	return product
}

func TestCreateProductValidation(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		input ProductCreate
	}{
		{"missing name", ProductCreate{Price: 1, Category: "c"}},
		{"name too long", ProductCreate{Name: strings.Repeat("x", 201), Price: 1, Category: "c"}},
		{"zero price", ProductCreate{Name: "n", Price: 0, Category: "c"}},
		{"negative price", ProductCreate{Name: "n", Price: -1, Category: "c"}},
		{"missing category", ProductCreate{Name: "n", Price: 1}},
		{"negative inventory", ProductCreate{Name: "n", Price: 1, Category: "c", InventoryCount: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateProduct(ctx, tt.input); !errors.Is(err, ErrProductInvalidInput) {
				t.Fatalf("CreateProduct() error = %v, want ErrProductInvalidInput", err)
			}
		})
	}
}

func TestGetProductCacheAside(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	product := createProduct(t, svc)
	ctx := context.Background()

	// Create warmed the cache, so reads never reach the store.
	for i := 0; i < 3; i++ {
		got, err := svc.GetProduct(ctx, product.ID)
		if err != nil {
			t.Fatalf("GetProduct() error = %v", err)
		}
		if got.Name != product.Name {
			t.Fatalf("GetProduct() = %+v, want %+v", got, product)
		}
	}
	if store.getCount() != 0 {
		t.Fatalf("store hit %d times, want 0", store.getCount())
	}

	// Drop the cache entry: next read falls through and repopulates.
	svc.InvalidateAll(ctx)
	if _, err := svc.GetProduct(ctx, product.ID); err != nil {
		t.Fatalf("GetProduct() after invalidation error = %v", err)
	}
	if store.getCount() != 1 {
		t.Fatalf("store hit %d times, want 1", store.getCount())
	}
	if _, err := svc.GetProduct(ctx, product.ID); err != nil {
		t.Fatalf("GetProduct() error = %v", err)
	}
	if store.getCount() != 1 {
		t.Fatalf("store hit %d times after repopulation, want 1", store.getCount())
	}
}

func TestGetProductNotFound(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	if _, err := svc.GetProduct(context.Background(), "missing"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("GetProduct() error = %v, want ErrProductNotFound", err)
	}
}

func TestUpdateProductRefreshesCache(t *testing.T) {
	svc, store, publisher := newTestService(t, nil)
	product := createProduct(t, svc)
	ctx := context.Background()

	price := 99.99
	updated, err := svc.UpdateProduct(ctx, product.ID, ProductPatch{Price: &price})
	if err != nil {
		t.Fatalf("UpdateProduct() error = %v", err)
	}
	if updated.Price != 99.99 {
		t.Fatalf("Price = %v, want 99.99", updated.Price)
	}

	// The cache holds the fresh copy, so the read skips the store.
	got, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("GetProduct() error = %v", err)
	}
	if got.Price != 99.99 {
		t.Fatalf("cached Price = %v, want 99.99", got.Price)
	}
	if store.getCount() != 0 {
		t.Fatalf("store hit %d times, want 0", store.getCount())
	}

	ev, ok := publisher.last()
	if !ok || ev.Kind != event.KindProductUpdated {
		t.Fatalf("last event = %+v, want kind %s", ev, event.KindProductUpdated)
	}
}

func TestUpdateProductValidation(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	product := createProduct(t, svc)
	ctx := context.Background()

	if _, err := svc.UpdateProduct(ctx, product.ID, ProductPatch{}); !errors.Is(err, ErrProductInvalidInput) {
		t.Fatalf("UpdateProduct(empty patch) error = %v, want ErrProductInvalidInput", err)
	}
	bad := -5.0
	if _, err := svc.UpdateProduct(ctx, product.ID, ProductPatch{Price: &bad}); !errors.Is(err, ErrProductInvalidInput) {
		t.Fatalf("UpdateProduct(bad price) error = %v, want ErrProductInvalidInput", err)
	}
}

func TestDeleteProductInvalidatesCache(t *testing.T) {
	svc, store, publisher := newTestService(t, nil)
	product := createProduct(t, svc)
	ctx := context.Background()

	if err := svc.DeleteProduct(ctx, product.ID); err != nil {
		t.Fatalf("DeleteProduct() error = %v", err)
	}

	// A stale cached copy must not resurrect the product.
	if _, err := svc.GetProduct(ctx, product.ID); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("GetProduct() after delete error = %v, want ErrProductNotFound", err)
	}
	if store.getCount() != 1 {
		t.Fatalf("store hit %d times, want 1", store.getCount())
	}

	ev, ok := publisher.last()
	if !ok || ev.Kind != event.KindProductDeleted {
		t.Fatalf("last event = %+v, want kind %s", ev, event.KindProductDeleted)
	}
}

func TestSearchProducts(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	createProduct(t, svc)
	ctx := context.Background()

	results, err := svc.SearchProducts(ctx, "keyboard", 10, 0)
	if err != nil {
		t.Fatalf("SearchProducts() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("SearchProducts() returned %d results, want 1", len(results))
	}

	if _, err := svc.SearchProducts(ctx, "", 10, 0); !errors.Is(err, ErrProductInvalidInput) {
		t.Fatalf("SearchProducts(empty) error = %v, want ErrProductInvalidInput", err)
	}
}

func TestServiceWithDisabledCache(t *testing.T) {
	svc, store, _ := newTestService(t, cache.Disabled())
	product := createProduct(t, svc)
	ctx := context.Background()

	if svc.CacheEnabled() {
		t.Fatal("CacheEnabled() = true, want false")
	}

	// Every read goes to the store; behavior is otherwise unchanged.
	for i := 0; i < 2; i++ {
		if _, err := svc.GetProduct(ctx, product.ID); err != nil {
			t.Fatalf("GetProduct() error = %v", err)
		}
	}
	if store.getCount() != 2 {
		t.Fatalf("store hit %d times, want 2", store.getCount())
	}

	if svc.InvalidateAll(ctx) != 0 {
		t.Fatal("InvalidateAll() on disabled cache != 0")
	}
}
