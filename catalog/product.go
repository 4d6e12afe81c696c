// Package catalog manages the product listing with a cache-aside read path
// and event-driven inventory updates.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrProductNotFound     = errors.New("catalog: product not found")
	ErrProductInvalidInput = errors.New("catalog: invalid product input")
)

const (
	maxNameLength        = 200
	maxCategoryLength    = 100
	maxDescriptionLength = 2000
)

// Product is a catalog entry.
type Product struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Price          float64   `json:"price"`
	Category       string    `json:"category"`
	InventoryCount int       `json:"inventory_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProductCreate is the input to CreateProduct.
type ProductCreate struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Price          float64 `json:"price"`
	Category       string  `json:"category"`
	InventoryCount int     `json:"inventory_count"`
}

// Validate checks the creation input.
func (c ProductCreate) Validate() error {
	if c.Name == "" || len(c.Name) > maxNameLength {
		return fmt.Errorf("%w: name must be 1..%d characters", ErrProductInvalidInput, maxNameLength)
	}
	if c.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrProductInvalidInput)
	}
	if c.Category == "" || len(c.Category) > maxCategoryLength {
		return fmt.Errorf("%w: category must be 1..%d characters", ErrProductInvalidInput, maxCategoryLength)
	}
	if len(c.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description too long", ErrProductInvalidInput)
	}
	if c.InventoryCount < 0 {
		return fmt.Errorf("%w: inventory count must not be negative", ErrProductInvalidInput)
	}
	return nil
}

// ProductPatch carries a partial product update; nil fields are untouched.
type ProductPatch struct {
	Name           *string  `json:"name"`
	Description    *string  `json:"description"`
	Price          *float64 `json:"price"`
	Category       *string  `json:"category"`
	InventoryCount *int     `json:"inventory_count"`
}

// Empty reports whether the patch changes nothing.
func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil &&
		p.Category == nil && p.InventoryCount == nil
}

// Validate checks whichever fields the patch sets.
func (p ProductPatch) Validate() error {
	if p.Name != nil && (*p.Name == "" || len(*p.Name) > maxNameLength) {
		return fmt.Errorf("%w: name must be 1..%d characters", ErrProductInvalidInput, maxNameLength)
	}
	if p.Price != nil && *p.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrProductInvalidInput)
	}
	if p.Category != nil && (*p.Category == "" || len(*p.Category) > maxCategoryLength) {
		return fmt.Errorf("%w: category must be 1..%d characters", ErrProductInvalidInput, maxCategoryLength)
	}
	if p.Description != nil && len(*p.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description too long", ErrProductInvalidInput)
	}
	if p.InventoryCount != nil && *p.InventoryCount < 0 {
		return fmt.Errorf("%w: inventory count must not be negative", ErrProductInvalidInput)
	}
	return nil
}

// Store abstracts product persistence.
type Store interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context, limit, offset int) ([]Product, error)
	CreateProduct(ctx context.Context, product Product) error
	UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, error)
	DeleteProduct(ctx context.Context, id string) error
	SearchProducts(ctx context.Context, query string, limit, offset int) ([]Product, error)
}
