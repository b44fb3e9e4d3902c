package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/delacruz/bakeshop-api/internal/models"
)

// defaultCategories are seeded on first list so a fresh storefront is
// never empty.
var defaultCategories = []string{"Cake", "Bread", "Pastry", "Cupcake", "Cookies"}

// ListCategories seeds the default categories idempotently and returns
// all of them by name.
func ListCategories(ctx context.Context, db *sql.DB) ([]models.Category, error) {
	for _, name := range defaultCategories {
		if _, err := FindOrCreateCategory(ctx, db, name); err != nil {
			return nil, err
		}
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return categories, nil
}

// FindOrCreateCategory inserts the category if the name is new and
// returns the row either way.
func FindOrCreateCategory(ctx context.Context, db *sql.DB, name string) (*models.Category, error) {
	if name == "" {
		return nil, invalidf("name", "category name is required")
	}

	category := &models.Category{}

	err := db.QueryRowContext(ctx,
		`INSERT INTO categories (name, created_at, updated_at)
		 VALUES ($1, NOW(), NOW())
		 ON CONFLICT (name) DO UPDATE SET updated_at = categories.updated_at
		 RETURNING id, name, created_at, updated_at`,
		name).Scan(&category.ID, &category.Name, &category.CreatedAt, &category.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("find or create category: %w", err)
	}

	return category, nil
}
