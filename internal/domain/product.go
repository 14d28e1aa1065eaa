package domain

// Product is the catalog's view of a sellable item. The order service only
// reads it.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	ImageURL string `json:"imageUrl,omitempty"`
	Stock    int    `json:"stock"`
}

// ProductSummary is the resolved product shown next to an order item.
type ProductSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Summary returns the display fields of p.
func (p *Product) Summary() *ProductSummary {
	return &ProductSummary{ID: p.ID, Name: p.Name, Price: p.Price, ImageURL: p.ImageURL}
}
