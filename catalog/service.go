package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/storefront-kit/storefront/cache"
	"github.com/storefront-kit/storefront/event"
)

// DefaultCacheTTL bounds how stale a cached product may get.
const DefaultCacheTTL = 5 * time.Minute

const productKeyPrefix = "product:"

// EventPublisher emits catalog lifecycle events. Publishing is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev event.Event) error
}

// Service fronts the product store with a cache-aside read path: reads try
// the cache first and fall back to the database, writes go to the database
// and then refresh or drop the cached entry. The cache is never the source
// of truth.
type Service struct {
	store    Store
	cache    *cache.Cache
	cacheTTL time.Duration
	events   EventPublisher
	logger   *slog.Logger
	now      func() time.Time
}

// ServiceConfig wires dependencies for Service.
type ServiceConfig struct {
	Store    Store
	Cache    *cache.Cache
	CacheTTL time.Duration
	Events   EventPublisher
	Logger   *slog.Logger
	Now      func() time.Time
}

// NewService validates the config and builds a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.Disabled()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:    cfg.Store,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		events:   cfg.Events,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}, nil
}

func productKey(id string) string { return productKeyPrefix + id }

// GetProduct returns the product from cache when possible, falling back to
// the store and repopulating the cache on a miss.
func (s *Service) GetProduct(ctx context.Context, id string) (Product, error) {
	if payload, ok := s.cache.Get(ctx, productKey(id)); ok {
		var product Product
		if err := json.Unmarshal(payload, &product); err == nil {
			return product, nil
		}
		// Unreadable entry: drop it and fall through to the store.
		s.cache.Delete(ctx, productKey(id))
	}

	product, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	s.cacheProduct(ctx, product)
	return product, nil
}

// ListProducts pages through the catalog straight from the store.
func (s *Service) ListProducts(ctx context.Context, limit, offset int) ([]Product, error) {
	limit, offset = clampPage(limit, offset)
	return s.store.ListProducts(ctx, limit, offset)
}

// SearchProducts matches the query against product names and descriptions.
func (s *Service) SearchProducts(ctx context.Context, query string, limit, offset int) ([]Product, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", ErrProductInvalidInput)
	}
	limit, offset = clampPage(limit, offset)
	return s.store.SearchProducts(ctx, query, limit, offset)
}

// CreateProduct persists a new product, warms the cache, and announces it.
func (s *Service) CreateProduct(ctx context.Context, input ProductCreate) (Product, error) {
	if err := input.Validate(); err != nil {
		return Product{}, err
	}

	now := s.now().UTC()
	product := Product{
		ID:             uuid.NewString(),
		Name:           input.Name,
		Description:    input.Description,
		Price:          input.Price,
		Category:       input.Category,
		InventoryCount: input.InventoryCount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return Product{}, err
	}

	s.cacheProduct(ctx, product)
	s.publish(ctx, event.KindProductCreated, product)
	return product, nil
}

// UpdateProduct applies a partial update, refreshes the cache, and announces
// the change.
func (s *Service) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	if patch.Empty() {
		return Product{}, fmt.Errorf("%w: empty patch", ErrProductInvalidInput)
	}
	if err := patch.Validate(); err != nil {
		return Product{}, err
	}

	product, err := s.store.UpdateProduct(ctx, id, patch)
	if err != nil {
		return Product{}, err
	}

	s.cacheProduct(ctx, product)
	s.publish(ctx, event.KindProductUpdated, product)
	return product, nil
}

// DeleteProduct removes the product and its cached entry.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.cache.Delete(ctx, productKey(id))
	s.publish(ctx, event.KindProductDeleted, map[string]string{"id": id})
	return nil
}

// InvalidateAll drops every cached product and returns the count. Exposed
// for the debug endpoint.
func (s *Service) InvalidateAll(ctx context.Context) int {
	return s.cache.DeletePrefix(ctx, productKeyPrefix)
}

// CacheEnabled reports whether the read path is actually using a backend.
func (s *Service) CacheEnabled() bool { return s.cache.Enabled() }

// CachedProducts returns how many products are currently cached. Exposed
// for the debug endpoint; 0 when the cache is degraded.
func (s *Service) CachedProducts(ctx context.Context) int {
	return s.cache.CountPrefix(ctx, productKeyPrefix)
}

func (s *Service) cacheProduct(ctx context.Context, product Product) {
	payload, err := json.Marshal(product)
	if err != nil {
		s.logger.Error("product not cached", "id", product.ID, "error", err)
		return
	}
	s.cache.Set(ctx, productKey(product.ID), payload, s.cacheTTL)
}

func (s *Service) publish(ctx context.Context, kind string, data any) {
	if s.events == nil {
		return
	}
	ev, err := event.New(kind, data)
	if err != nil {
		s.logger.Error("event not built", "kind", kind, "error", err)
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("event not published", "kind", kind, "error", err)
	}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
