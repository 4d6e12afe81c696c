// Package catalogapi exposes the product service's HTTP surface: product
// CRUD, search, health probes, and a couple of debug endpoints.
package catalogapi

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/storefront-kit/storefront/authclient"
	"github.com/storefront-kit/storefront/catalog"
	"github.com/storefront-kit/storefront/httpx"
)

const contextKeyIdentity = "catalogapi.identity"

// TokenVerifier checks bearer tokens with the user service.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (authclient.Identity, error)
}

// QueueStatus reports the state of the inventory consumer.
type QueueStatus interface {
	Connected() bool
	QueueDepth() (int, error)
}

// Health reports the state of the service's dependencies.
type Health struct {
	Database func(ctx context.Context) bool
	Cache    func(ctx context.Context) bool
	Queue    QueueStatus
}

// API wires the catalog service into HTTP handlers. Reads are public;
// writes require a token verified against the user service.
type API struct {
	service  *catalog.Service
	verifier TokenVerifier
	health   Health
	logger   *slog.Logger
}

// New builds the API. A nil verifier leaves write endpoints open, which is
// only sensible in tests.
func New(service *catalog.Service, verifier TokenVerifier, health Health, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{service: service, verifier: verifier, health: health, logger: logger}
}

// Routes registers every endpoint on the given Echo instance.
func (a *API) Routes(e *httpx.Echo) {
	e.GET("/", a.describe)
	e.GET("/healthz", a.healthz)
	e.GET("/ready", a.ready)
	e.GET("/debug/cache-stats", a.cacheStats)
	e.GET("/debug/queue-depth", a.queueDepth)
	e.POST("/debug/cache-flush", a.cacheFlush, a.requireAuth)

	httpx.NewRouter(e, "/api/products").
		GET("/", a.listProducts).
		GET("/search/", a.searchProducts).
		GET("/:id", a.getProduct).
		GET("/:id/inventory", a.getInventory).
		POST("/", a.createProduct, a.requireAuth).
		PUT("/:id", a.updateProduct, a.requireAuth).
		DELETE("/:id", a.deleteProduct, a.requireAuth)
}

func (a *API) requireAuth(next httpx.HandlerFunc) httpx.HandlerFunc {
	return func(c httpx.Context) error {
		if a.verifier == nil {
			return next(c)
		}
		token := httpx.BearerToken(c)
		if token == "" {
			return httpx.HTTPError(httpx.StatusUnauthorized, "missing bearer token")
		}
		identity, err := a.verifier.Verify(c.Request().Context(), token)
		if err != nil {
			if errors.Is(err, authclient.ErrUnauthorized) {
				return httpx.HTTPError(httpx.StatusUnauthorized, "invalid token")
			}
			a.logger.Error("token verification unavailable", "error", err)
			return httpx.HTTPError(httpx.StatusServiceUnavailable, "authentication unavailable")
		}
		c.Set(contextKeyIdentity, identity)
		return next(c)
	}
}

func (a *API) listProducts(c httpx.Context) error {
	limit, offset := pageParams(c)
	products, err := a.service.ListProducts(c.Request().Context(), limit, offset)
	if err != nil {
		return err
	}
	if products == nil {
		products = []catalog.Product{}
	}
	return c.JSON(httpx.StatusOK, products)
}

func (a *API) searchProducts(c httpx.Context) error {
	query := c.QueryParam("q")
	limit, offset := pageParams(c)
	products, err := a.service.SearchProducts(c.Request().Context(), query, limit, offset)
	if err != nil {
		if errors.Is(err, catalog.ErrProductInvalidInput) {
			return httpx.HTTPError(httpx.StatusBadRequest, "query parameter q is required")
		}
		return err
	}
	if products == nil {
		products = []catalog.Product{}
	}
	return c.JSON(httpx.StatusOK, products)
}

func (a *API) getProduct(c httpx.Context) error {
	product, err := a.service.GetProduct(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return httpx.HTTPError(httpx.StatusNotFound, "product not found")
		}
		return err
	}
	return c.JSON(httpx.StatusOK, product)
}

func (a *API) getInventory(c httpx.Context) error {
	product, err := a.service.GetProduct(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return httpx.HTTPError(httpx.StatusNotFound, "product not found")
		}
		return err
	}
	return c.JSON(httpx.StatusOK, map[string]any{
		"product_id":      product.ID,
		"inventory_count": product.InventoryCount,
	})
}

func (a *API) createProduct(c httpx.Context) error {
	var input catalog.ProductCreate
	if err := c.Bind(&input); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid request body")
	}
	product, err := a.service.CreateProduct(c.Request().Context(), input)
	if err != nil {
		if errors.Is(err, catalog.ErrProductInvalidInput) {
			return httpx.HTTPError(httpx.StatusBadRequest, err.Error())
		}
		return err
	}
	return c.JSON(httpx.StatusCreated, product)
}

func (a *API) updateProduct(c httpx.Context) error {
	var patch catalog.ProductPatch
	if err := c.Bind(&patch); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid request body")
	}
	product, err := a.service.UpdateProduct(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrProductNotFound):
			return httpx.HTTPError(httpx.StatusNotFound, "product not found")
		case errors.Is(err, catalog.ErrProductInvalidInput):
			return httpx.HTTPError(httpx.StatusBadRequest, err.Error())
		}
		return err
	}
	return c.JSON(httpx.StatusOK, product)
}

func (a *API) deleteProduct(c httpx.Context) error {
	if err := a.service.DeleteProduct(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return httpx.HTTPError(httpx.StatusNotFound, "product not found")
		}
		return err
	}
	return c.NoContent(httpx.StatusNoContent)
}

func (a *API) describe(c httpx.Context) error {
	return c.JSON(httpx.StatusOK, map[string]string{
		"service": "product-service",
		"status":  "running",
	})
}

func (a *API) healthz(c httpx.Context) error {
	return c.JSON(httpx.StatusOK, map[string]string{"status": "ok"})
}

// ready reports dependency health. The service is ready as long as the
// database answers; cache and queue are informational.
func (a *API) ready(c httpx.Context) error {
	ctx := c.Request().Context()
	deps := map[string]bool{
		"database": probe(ctx, a.health.Database),
		"cache":    probe(ctx, a.health.Cache),
		"queue":    a.health.Queue != nil && a.health.Queue.Connected(),
	}
	status := httpx.StatusOK
	if !deps["database"] {
		status = httpx.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]any{"ready": deps["database"], "dependencies": deps})
}

func (a *API) cacheStats(c httpx.Context) error {
	return c.JSON(httpx.StatusOK, map[string]any{
		"enabled": a.service.CacheEnabled(),
		"keys": map[string]int{
			"product": a.service.CachedProducts(c.Request().Context()),
		},
	})
}

// cacheFlush drops every cached product. Guarded because it is a blunt
// instrument.
func (a *API) cacheFlush(c httpx.Context) error {
	removed := a.service.InvalidateAll(c.Request().Context())
	return c.JSON(httpx.StatusOK, map[string]any{"invalidated": removed})
}

func (a *API) queueDepth(c httpx.Context) error {
	if a.health.Queue == nil || !a.health.Queue.Connected() {
		return httpx.HTTPError(httpx.StatusServiceUnavailable, "consumer not connected")
	}
	depth, err := a.health.Queue.QueueDepth()
	if err != nil {
		return httpx.HTTPError(httpx.StatusServiceUnavailable, "queue depth unavailable")
	}
	return c.JSON(httpx.StatusOK, map[string]any{"depth": depth})
}

func probe(ctx context.Context, fn func(context.Context) bool) bool {
	if fn == nil {
		return false
	}
	return fn(ctx)
}

func pageParams(c httpx.Context) (int, int) {
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	return limit, offset
}

func intQuery(c httpx.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
