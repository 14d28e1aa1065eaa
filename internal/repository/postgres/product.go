package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/internal/repository"
	"github.com/utafrali/coffeeshop/pkg/database"
	apperrors "github.com/utafrali/coffeeshop/pkg/errors"
)

var _ repository.ProductCatalog = (*ProductCatalog)(nil)

const getProductSQL = `SELECT id, name, price, image_url, stock FROM products WHERE id = $1`

// ProductCatalog reads the products table owned by the catalog service.
type ProductCatalog struct {
	pool database.DBTX
}

// NewProductCatalog creates a catalog reader over pool.
func NewProductCatalog(pool database.DBTX) *ProductCatalog {
	return &ProductCatalog{pool: pool}
}

// GetProduct returns apperrors.ErrNotFound for unknown ids, including ids
// that are not UUIDs and so cannot name a row.
func (c *ProductCatalog) GetProduct(ctx context.Context, id string) (_ *domain.Product, err error) {
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return nil, apperrors.ErrNotFound
	}

	ctx, end := database.TraceQuery(ctx, "products.get", getProductSQL)
	defer func() { end(err) }()

	var p domain.Product
	err = c.pool.QueryRow(ctx, getProductSQL, id).Scan(&p.ID, &p.Name, &p.Price, &p.ImageURL, &p.Stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}

	return &p, nil
}
