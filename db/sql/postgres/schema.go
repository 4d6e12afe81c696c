package postgres

import (
	"context"
	"database/sql"
)

// UsersSchema creates the users table for the user service.
const UsersSchema = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    email TEXT UNIQUE NOT NULL,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    phone TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// ProductsSchema creates the products table for the product service.
const ProductsSchema = `
CREATE TABLE IF NOT EXISTS products (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    price NUMERIC(12,2) NOT NULL,
    category TEXT NOT NULL,
    inventory_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const productsCategoryIndex = `
CREATE INDEX IF NOT EXISTS idx_products_category ON products (category)`

// MigrateUsers applies the user service schema.
func MigrateUsers(ctx context.Context, db *sql.DB) error {
	return ApplyMigrations(ctx, db, UsersSchema)
}

// MigrateProducts applies the product service schema.
func MigrateProducts(ctx context.Context, db *sql.DB) error {
	return ApplyMigrations(ctx, db, ProductsSchema, productsCategoryIndex)
}
