package app

import (
	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/internal/repository/memory"
)

// Menu is the sample catalog served by the in-memory driver. Prices are in
// whole NT dollars.
var Menu = []domain.Product{
	{ID: "8f14e45f-ceea-4e6b-9d3c-3b2a1c0d9e01", Name: "Latte", Price: 150, ImageURL: "/images/latte.jpg", Stock: 100},
	{ID: "8f14e45f-ceea-4e6b-9d3c-3b2a1c0d9e02", Name: "Americano", Price: 110, ImageURL: "/images/americano.jpg", Stock: 100},
	{ID: "8f14e45f-ceea-4e6b-9d3c-3b2a1c0d9e03", Name: "Cold Brew", Price: 160, ImageURL: "/images/cold-brew.jpg", Stock: 60},
	{ID: "8f14e45f-ceea-4e6b-9d3c-3b2a1c0d9e04", Name: "Filter Pack", Price: 50, ImageURL: "/images/filter-pack.jpg", Stock: 200},
	{ID: "8f14e45f-ceea-4e6b-9d3c-3b2a1c0d9e05", Name: "House Blend Beans 250g", Price: 420, ImageURL: "/images/house-blend.jpg", Stock: 40},
}

// DemoUsers are resolved in the admin order list of a seeded store.
var DemoUsers = []domain.UserSummary{
	{ID: "5a1d3c2b-7e8f-4a6b-9c0d-1e2f3a4b5c01", Name: "Demo Customer", Email: "customer@coffeeshop.test"},
	{ID: "5a1d3c2b-7e8f-4a6b-9c0d-1e2f3a4b5c02", Name: "Shop Admin", Email: "admin@coffeeshop.test"},
}

// SeedMenu loads Menu and DemoUsers into store.
func SeedMenu(store *memory.Store) {
	for _, p := range Menu {
		store.PutProduct(p)
	}
	for _, u := range DemoUsers {
		store.PutUser(u)
	}
}
