package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Params holds 1-based page parameters extracted from a request.
type Params struct {
	Page    int
	PerPage int
}

// New clamps page and perPage to valid values.
func New(page, perPage int) Params {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Params{Page: page, PerPage: perPage}
}

// FromContext extracts page and per_page from the echo context.
func FromContext(c echo.Context) Params {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	perPage, _ := strconv.Atoi(c.QueryParam("per_page"))
	return New(page, perPage)
}

// Offset is the number of rows skipped before this page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// SQL returns the LIMIT and OFFSET clause for SQL queries.
func (p Params) SQL() string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.PerPage, p.Offset())
}

// LastPage returns the last 1-based page for total rows; an empty set still
// has page 1.
func (p Params) LastPage(total int) int {
	if total <= 0 || p.PerPage <= 0 {
		return 1
	}
	return (total + p.PerPage - 1) / p.PerPage
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Page < p.LastPage(total)
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Page > 1
}

// Meta is the pagination block of a list response.
type Meta struct {
	Page     int `json:"page"`
	PerPage  int `json:"per_page"`
	LastPage int `json:"last_page"`
	Total    int `json:"total"`
}

// Response wraps a paginated API response.
type Response struct {
	Data       interface{} `json:"data"`
	Pagination Meta        `json:"pagination"`
}

func NewMeta(p Params, total int) Meta {
	return Meta{
		Page:     p.Page,
		PerPage:  p.PerPage,
		LastPage: p.LastPage(total),
		Total:    total,
	}
}

func NewResponse(data interface{}, p Params, total int) *Response {
	return &Response{Data: data, Pagination: NewMeta(p, total)}
}
