package domain

import "time"

// DefaultOrderNumberPrefix is used when no prefix is configured.
const DefaultOrderNumberPrefix = "CF"

// OrderNumbering derives the customer-facing order number:
// prefix + YYMMDD of createdAt in Location + the last six characters of id.
// It is computed on read and never stored. A nil Location means UTC.
type OrderNumbering struct {
	Prefix   string
	Location *time.Location
}

// Format returns the display number for the order with id created at createdAt.
func (n OrderNumbering) Format(id string, createdAt time.Time) string {
	prefix := n.Prefix
	if prefix == "" {
		prefix = DefaultOrderNumberPrefix
	}
	loc := n.Location
	if loc == nil {
		loc = time.UTC
	}
	suffix := id
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return prefix + createdAt.In(loc).Format("060102") + suffix
}

// OrderNumber returns the order's display number.
func (o *Order) OrderNumber(n OrderNumbering) string {
	return n.Format(o.ID, o.CreatedAt)
}
