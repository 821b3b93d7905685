package models

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// PageRequest is the page/size pair accepted by list endpoints.
type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize clamps the request to page >= 1 and 1 <= size <= MaxPageSize.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset returns the SQL OFFSET of the normalized page.
func (p PageRequest) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

// Pagination builds the response metadata for total rows.
func (p PageRequest) Pagination(total int) *Pagination {
	n := p.Normalize()
	return &Pagination{Page: n.Page, PageSize: n.PageSize, TotalCount: total}
}
