package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cityflow/neurotraff/services"
	"cityflow/neurotraff/store"

	"github.com/gin-gonic/gin"
)

type SampleLister interface {
	List(ctx context.Context, q store.Query) (store.Page, error)
}

type SamplesHandler struct {
	history SampleLister
	cache   *services.CacheService
}

func NewSamplesHandler(history SampleLister, cache *services.CacheService) *SamplesHandler {
	return &SamplesHandler{history: history, cache: cache}
}

// GetSamples pages through stored samples, newest first.
func (h *SamplesHandler) GetSamples(c *gin.Context) {
	p := ParsePagination(c)
	road := c.Query("road")

	beforeStr := ""
	if p.Before != nil {
		beforeStr = p.Before.String()
	}
	cacheKey := fmt.Sprintf("samples:%s:%d:%s", road, p.Limit, beforeStr)

	var cached CursorResponse
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached.Data != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	page, err := h.history.List(c.Request.Context(), store.Query{Road: road, Limit: p.Limit, Before: p.Before})
	if err != nil {
		respondError(c, fmt.Errorf("list samples: %w", err))
		return
	}

	resp := CursorResponse{Data: page.Samples, HasMore: page.HasMore}
	if page.NextCursor != nil {
		resp.NextCursor = page.NextCursor.String()
	}
	go h.cache.Set(context.Background(), cacheKey, resp, 5*time.Second)

	c.JSON(http.StatusOK, resp)
}
