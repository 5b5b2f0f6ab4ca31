package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Params holds skip/limit paging extracted from a request.
type Params struct {
	Skip  int
	Limit int
}

// FromContext reads skip and limit leniently: bad or missing values fall back
// to the defaults and limit is clamped to MaxLimit.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	skip, _ := strconv.Atoi(c.QueryParam("skip"))
	if skip < 0 {
		skip = 0
	}

	return Params{Skip: skip, Limit: limit}
}

// Parse reads skip and limit strictly, rejecting skip < 0 and limit outside
// 1..MaxLimit.
func Parse(c echo.Context) (Params, error) {
	p := Params{Limit: DefaultLimit}
	if s := c.QueryParam("skip"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			return Params{}, fmt.Errorf("skip must be a non-negative integer")
		}
		p.Skip = v
	}
	if s := c.QueryParam("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > MaxLimit {
			return Params{}, fmt.Errorf("limit must be between 1 and %d", MaxLimit)
		}
		p.Limit = v
	}
	return p, nil
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Skip+p.Limit < total
}

// Next returns the params for the following page.
func (p Params) Next() Params {
	return Params{Skip: p.Skip + p.Limit, Limit: p.Limit}
}
