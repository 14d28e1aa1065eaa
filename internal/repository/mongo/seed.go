package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/pkg/database"
)

// SeedCatalog replaces or inserts products and users by id.
func SeedCatalog(ctx context.Context, db *mongo.Database, products []domain.Product, users []domain.UserSummary) error {
	productModels := make([]mongo.WriteModel, 0, len(products))
	for _, p := range products {
		doc := productDocument{ID: p.ID, Name: p.Name, Price: p.Price, ImageURL: p.ImageURL, Stock: p.Stock}
		productModels = append(productModels,
			mongo.NewReplaceOneModel().SetFilter(bson.M{"_id": p.ID}).SetReplacement(doc).SetUpsert(true))
	}
	if err := bulkUpsert(ctx, db.Collection(productsCollection), productModels); err != nil {
		return fmt.Errorf("seed products: %w", err)
	}

	userModels := make([]mongo.WriteModel, 0, len(users))
	for _, u := range users {
		doc := userDocument{ID: u.ID, Name: u.Name, Email: u.Email}
		userModels = append(userModels,
			mongo.NewReplaceOneModel().SetFilter(bson.M{"_id": u.ID}).SetReplacement(doc).SetUpsert(true))
	}
	if err := bulkUpsert(ctx, db.Collection(usersCollection), userModels); err != nil {
		return fmt.Errorf("seed users: %w", err)
	}
	return nil
}

func bulkUpsert(ctx context.Context, coll *mongo.Collection, models []mongo.WriteModel) (err error) {
	if len(models) == 0 {
		return nil
	}
	ctx, end := database.TraceCollection(ctx, "bulkWrite", coll.Name())
	defer func() { end(err) }()

	_, err = coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}
