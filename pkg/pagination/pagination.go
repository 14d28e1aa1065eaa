package pagination

import (
	"fmt"
	"net/http"
	"strconv"

	apperrors "github.com/utafrali/coffeeshop/pkg/errors"
)

// MaxPerPage caps per_page.
const MaxPerPage = 100

// DefaultPerPage applies when page is given without per_page.
const DefaultPerPage = 20

// Params holds pagination parameters extracted from query strings. A zero
// PerPage means the caller asked for the whole result set.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Unpaged reports whether every row should be returned.
func (p Params) Unpaged() bool {
	return p.PerPage <= 0
}

// Offset returns the number of rows to skip.
func (p Params) Offset() int {
	if p.Unpaged() || p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.PerPage
}

// FromRequest extracts page and per_page from the query string. When neither
// is present the result is unpaged. Malformed or out-of-range values are an
// INVALID_PARAMETER error.
func FromRequest(r *http.Request) (Params, error) {
	q := r.URL.Query()
	rawPage, rawPerPage := q.Get("page"), q.Get("per_page")
	if rawPage == "" && rawPerPage == "" {
		return Params{}, nil
	}

	p := Params{Page: 1, PerPage: DefaultPerPage}
	if rawPage != "" {
		v, err := strconv.Atoi(rawPage)
		if err != nil || v < 1 {
			return Params{}, invalid("page", rawPage)
		}
		p.Page = v
	}
	if rawPerPage != "" {
		v, err := strconv.Atoi(rawPerPage)
		if err != nil || v < 1 || v > MaxPerPage {
			return Params{}, invalid("per_page", rawPerPage)
		}
		p.PerPage = v
	}
	return p, nil
}

func invalid(name, value string) error {
	return apperrors.Validation("INVALID_PARAMETER",
		fmt.Sprintf("invalid %s %q: must be a positive integer (per_page at most %d)", name, value, MaxPerPage), nil)
}
