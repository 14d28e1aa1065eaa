package postgres

import (
	"context"
	"fmt"

	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/pkg/database"
)

const (
	upsertProductSQL = `
		INSERT INTO products (id, name, price, stock, image_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price, stock = EXCLUDED.stock, image_url = EXCLUDED.image_url`

	upsertUserSQL = `
		INSERT INTO users (id, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email`
)

// SeedCatalog upserts products and users in one transaction. It is meant for
// local and demo databases where the catalog and user services are absent.
func SeedCatalog(ctx context.Context, pool database.DBTX, products []domain.Product, users []domain.UserSummary) (err error) {
	ctx, end := database.TraceQuery(ctx, "catalog.seed", upsertProductSQL)
	defer func() { end(err) }()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin seed transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range products {
		if _, err = tx.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.Stock, p.ImageURL); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Name, err)
		}
	}
	for _, u := range users {
		if _, err = tx.Exec(ctx, upsertUserSQL, u.ID, u.Name, u.Email); err != nil {
			return fmt.Errorf("upsert user %s: %w", u.Email, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit seed transaction: %w", err)
	}
	return nil
}
