package handlers

import (
	"strconv"

	"cityflow/neurotraff/store"

	"github.com/gin-gonic/gin"
)

type PaginationParams struct {
	Limit  int
	Before *store.Cursor
}

type CursorResponse struct {
	Data       interface{} `json:"data"`
	NextCursor string      `json:"next_cursor,omitempty"`
	HasMore    bool        `json:"has_more"`
}

// ParsePagination reads limit and the before cursor; malformed values fall
// back to defaults.
func ParsePagination(c *gin.Context) PaginationParams {
	p := PaginationParams{Limit: store.DefaultLimit}

	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			p.Limit = l
		}
	}
	if p.Limit > store.MaxLimit {
		p.Limit = store.MaxLimit
	}

	if beforeStr := c.Query("before"); beforeStr != "" {
		if cur, err := store.ParseCursor(beforeStr); err == nil {
			p.Before = &cur
		}
	}

	return p
}
