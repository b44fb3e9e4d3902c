package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/delacruz/bakeshop-api/internal/database"
	"github.com/delacruz/bakeshop-api/internal/models"
)

type ProductInput struct {
	CategoryID  int64
	Name        string
	Description string
	BasePrice   decimal.Decimal
	IsAvailable bool
	ImageURL    string
}

func validateProduct(in ProductInput) error {
	if in.Name == "" {
		return invalidf("name", "name is required")
	}
	if in.CategoryID <= 0 {
		return invalidf("category_id", "category id is required")
	}
	if in.BasePrice.IsNegative() {
		return invalidf("base_price", "base price must not be negative")
	}
	return nil
}

const productColumns = `id, category_id, name, description, base_price,
	is_available, image_url, created_at, updated_at`

func scanProduct(row interface{ Scan(...interface{}) error }) (*models.Product, error) {
	product := &models.Product{}
	err := row.Scan(
		&product.ID,
		&product.CategoryID,
		&product.Name,
		&product.Description,
		&product.BasePrice,
		&product.IsAvailable,
		&product.ImageURL,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return product, nil
}

func CreateProduct(ctx context.Context, db *sql.DB, in ProductInput) (*models.Product, error) {
	if err := validateProduct(in); err != nil {
		return nil, err
	}

	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1)",
		in.CategoryID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check category exists: %w", err)
	}
	if !exists {
		return nil, database.ErrCategoryNotFound
	}

	row := db.QueryRowContext(ctx,
		`INSERT INTO products (category_id, name, description, base_price,
		                       is_available, image_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 RETURNING `+productColumns,
		in.CategoryID, in.Name, in.Description, in.BasePrice, in.IsAvailable, in.ImageURL)

	product, err := scanProduct(row)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db *sql.DB, id int64) (*models.Product, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)

	product, err := scanProduct(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

func UpdateProduct(ctx context.Context, db *sql.DB, id int64, in ProductInput) (*models.Product, error) {
	if err := validateProduct(in); err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx,
		`UPDATE products
		 SET category_id = $1, name = $2, description = $3, base_price = $4,
		     is_available = $5, image_url = $6, updated_at = NOW()
		 WHERE id = $7
		 RETURNING `+productColumns,
		in.CategoryID, in.Name, in.Description, in.BasePrice, in.IsAvailable, in.ImageURL, id)

	product, err := scanProduct(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	return product, nil
}

func DeleteProduct(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

type ProductFilter struct {
	Category string // category name; empty or "all" means no filter
	Search   string // substring match on product name
}

// ListProducts returns a page of the catalog, optionally narrowed by
// category name and a case-insensitive name search.
func ListProducts(ctx context.Context, db *sql.DB, filter ProductFilter, page, pageSize int) (*OffsetPage, error) {
	where := "TRUE"
	args := []interface{}{}

	if filter.Category != "" && filter.Category != "all" {
		args = append(args, filter.Category)
		where += fmt.Sprintf(` AND category_id IN (SELECT id FROM categories WHERE name = $%d)`, len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += fmt.Sprintf(` AND name ILIKE $%d`, len(args))
	}

	var total int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	args = append(args, pageSize, offset)
	query := fmt.Sprintf(
		`SELECT `+productColumns+`
		 FROM products
		 WHERE `+where+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT $%d OFFSET $%d`,
		len(args)-1, len(args))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &OffsetPage{
		Items:      products,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}
