package persistence

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page selects a window of a listing. Numbers start at 1.
type Page struct {
	Number int `json:"page" form:"page"`
	Size   int `json:"page_size" form:"page_size"`
}

// Normalize applies defaults and bounds.
func (p Page) Normalize() Page {
	if p.Number <= 0 {
		p.Number = 1
	}

	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}

	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}

	return p
}

// Offset is the number of rows to skip.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// PageResult is one page of T with the total across all pages.
type PageResult[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// TotalPages rounds up.
func (r PageResult[T]) TotalPages() int {
	if r.PageSize == 0 {
		return 0
	}

	return int((r.Total + int64(r.PageSize) - 1) / int64(r.PageSize))
}

// HasNext reports whether a later page exists.
func (r PageResult[T]) HasNext() bool { return r.Page < r.TotalPages() }
