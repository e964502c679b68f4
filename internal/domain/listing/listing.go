// Package listing parses the search/filter/sort/paginate/fields query
// parameters shared by the order list endpoints.
package listing

import (
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/xenking/emart-orders/internal/domain/apperr"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
	DefaultSort  = "-createdAt"

	// MaxPage keeps Page*MaxLimit within an int.
	MaxPage = math.MaxInt / MaxLimit
)

// reserved parameters never become equality filters.
var reserved = []string{"searchTerm", "sort", "page", "limit", "fields"}

// SortKey is one ORDER BY term.
type SortKey struct {
	Field string
	Desc  bool
}

// Query is a parsed list request.
type Query struct {
	Search  string
	Filters map[string]string
	Sort    []SortKey
	Page    int
	Limit   int
	Fields  []string
}

// Offset returns the number of rows to skip.
func (q Query) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Meta describes the page returned alongside a list.
type Meta struct {
	Page      int `json:"page"`
	Limit     int `json:"limit"`
	Total     int `json:"total"`
	TotalPage int `json:"totalPage"`
}

// NewMeta computes page metadata for total matching rows.
func NewMeta(q Query, total int) Meta {
	pages := 0
	if q.Limit > 0 {
		pages = (total + q.Limit - 1) / q.Limit
	}
	return Meta{Page: q.Page, Limit: q.Limit, Total: total, TotalPage: pages}
}

// Schema names the fields a caller may filter and sort on.
type Schema struct {
	Filterable []string
	Sortable   []string
}

// Parse builds a Query from URL values. Unknown filter and sort fields are
// rejected rather than ignored.
func Parse(values url.Values, schema Schema) (Query, error) {
	q := Query{
		Search:  strings.TrimSpace(values.Get("searchTerm")),
		Filters: make(map[string]string),
		Page:    DefaultPage,
		Limit:   DefaultLimit,
	}

	if v := values.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxPage {
			return Query{}, apperr.New(apperr.KindValidation, "page must be a positive integer")
		}
		q.Page = n
	}
	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Query{}, apperr.New(apperr.KindValidation, "limit must be a positive integer")
		}
		q.Limit = min(n, MaxLimit)
	}

	sort := values.Get("sort")
	if sort == "" {
		sort = DefaultSort
	}
	for _, term := range splitList(sort) {
		key := SortKey{Field: term}
		if strings.HasPrefix(term, "-") {
			key = SortKey{Field: term[1:], Desc: true}
		}
		if !slices.Contains(schema.Sortable, key.Field) {
			return Query{}, apperr.New(apperr.KindValidation, "cannot sort by "+key.Field)
		}
		q.Sort = append(q.Sort, key)
	}

	q.Fields = splitList(values.Get("fields"))

	for name, vals := range values {
		if slices.Contains(reserved, name) || len(vals) == 0 {
			continue
		}
		if !slices.Contains(schema.Filterable, name) {
			return Query{}, apperr.New(apperr.KindValidation, "cannot filter by "+name)
		}
		q.Filters[name] = vals[0]
	}

	return q, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
