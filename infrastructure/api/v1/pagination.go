package v1

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/memevault/memevault/infrastructure/api/jsonapi"
)

// DefaultPageSize is the default number of items per page.
const DefaultPageSize = 20

// MaxPageSize is the maximum allowed page size.
const MaxPageSize = 100

// PaginationParams holds limit/offset parameters parsed from query strings.
type PaginationParams struct {
	limit  int
	offset int
}

// NewPaginationParams creates pagination params with defaults.
func NewPaginationParams() PaginationParams {
	return PaginationParams{limit: DefaultPageSize}
}

// ParsePagination parses limit and offset from an HTTP request.
// Invalid values fall back to the defaults; limit is capped at MaxPageSize.
func ParsePagination(r *http.Request) PaginationParams {
	params := NewPaginationParams()

	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 1 {
			params.limit = min(n, MaxPageSize)
		}
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			params.offset = n
		}
	}
	return params
}

// Limit returns the page size.
func (p PaginationParams) Limit() int { return p.limit }

// Offset returns the number of items skipped.
func (p PaginationParams) Offset() int { return p.offset }

// WithOffset returns a copy with the given offset.
func (p PaginationParams) WithOffset(offset int) PaginationParams {
	p.offset = max(offset, 0)
	return p
}

// PaginationMeta builds a JSON:API meta object from params and the total count.
func PaginationMeta(params PaginationParams, totalCount int64) jsonapi.Meta {
	return jsonapi.Meta{
		"limit":       params.Limit(),
		"offset":      params.Offset(),
		"total_count": totalCount,
	}
}

// PaginationLinks builds JSON:API links from the request, params and total count.
func PaginationLinks(r *http.Request, params PaginationParams, totalCount int64) *jsonapi.Links {
	build := func(offset int) string {
		q := r.URL.Query()
		q.Set("limit", strconv.Itoa(params.Limit()))
		q.Set("offset", strconv.Itoa(offset))
		return fmt.Sprintf("%s?%s", r.URL.Path, q.Encode())
	}

	links := jsonapi.Links{
		Self:  build(params.Offset()),
		First: build(0),
	}

	total := int(totalCount)
	if total > 0 {
		links.Last = build(((total - 1) / params.Limit()) * params.Limit())
	}
	if params.Offset() > 0 {
		links.Prev = build(max(params.Offset()-params.Limit(), 0))
	}
	if params.Offset()+params.Limit() < total {
		links.Next = build(params.Offset() + params.Limit())
	}
	return &links
}
