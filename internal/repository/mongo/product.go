package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/internal/repository"
	"github.com/utafrali/coffeeshop/pkg/database"
	apperrors "github.com/utafrali/coffeeshop/pkg/errors"
)

var _ repository.ProductCatalog = (*ProductCatalog)(nil)

type productDocument struct {
	ID       string `bson:"_id"`
	Name     string `bson:"name"`
	Price    int64  `bson:"price"`
	ImageURL string `bson:"imageUrl"`
	Stock    int    `bson:"stock"`
}

func (d productDocument) toDomain() domain.Product {
	return domain.Product{ID: d.ID, Name: d.Name, Price: d.Price, ImageURL: d.ImageURL, Stock: d.Stock}
}

// ProductCatalog reads the products collection.
type ProductCatalog struct {
	products *mongo.Collection
}

func NewProductCatalog(db *mongo.Database) *ProductCatalog {
	return &ProductCatalog{products: db.Collection(productsCollection)}
}

func (c *ProductCatalog) GetProduct(ctx context.Context, id string) (_ *domain.Product, err error) {
	ctx, end := database.TraceCollection(ctx, "findOne", productsCollection)
	defer func() { end(err) }()

	var doc productDocument
	if err = c.products.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("find product: %w", err)
	}

	p := doc.toDomain()
	return &p, nil
}
