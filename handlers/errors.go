package handlers

import (
	"errors"
	"log"
	"net/http"

	"cityflow/neurotraff/classifier"
	"cityflow/neurotraff/pipeline"
	"cityflow/neurotraff/provider"
	"cityflow/neurotraff/roads"
	"cityflow/neurotraff/services"

	"github.com/gin-gonic/gin"
)

// Machine-readable reasons returned in the "error" field.
const (
	ReasonInvalidRequest   = "invalid_request"
	ReasonUnknownRoad      = "unknown_road"
	ReasonOutsideWindow    = "outside_window"
	ReasonUpstreamFetch    = "upstream_fetch_failed"
	ReasonSchema           = "schema_error"
	ReasonParse            = "parse_error"
	ReasonUnseenCategory   = "unseen_category"
	ReasonModelUnavailable = "model_unavailable"
	ReasonUnauthorized     = "unauthorized"
	ReasonInternal         = "internal_error"
)

// classify maps an error to its HTTP status and reason.
func classify(err error) (int, string) {
	var (
		unknown  *roads.UnknownRoadError
		window   *services.OutOfWindowError
		upstream *provider.UpstreamFetchError
		schema   *pipeline.SchemaError
		mismatch *classifier.SchemaMismatchError
		parse    *pipeline.ParseError
		unseen   *pipeline.UnseenCategoryError
		unfitted *pipeline.NotFittedError
	)
	switch {
	case errors.As(err, &unknown):
		return http.StatusBadRequest, ReasonUnknownRoad
	case errors.As(err, &window):
		return http.StatusForbidden, ReasonOutsideWindow
	case errors.As(err, &upstream):
		return http.StatusBadGateway, ReasonUpstreamFetch
	case errors.As(err, &schema), errors.As(err, &mismatch):
		return http.StatusInternalServerError, ReasonSchema
	case errors.As(err, &parse):
		return http.StatusUnprocessableEntity, ReasonParse
	case errors.As(err, &unseen):
		return http.StatusUnprocessableEntity, ReasonUnseenCategory
	case errors.Is(err, services.ErrModelUnavailable), errors.As(err, &unfitted):
		return http.StatusServiceUnavailable, ReasonModelUnavailable
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized, ReasonUnauthorized
	default:
		return http.StatusInternalServerError, ReasonInternal
	}
}

func respondError(c *gin.Context, err error) string {
	status, reason := classify(err)
	if status >= 500 {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": reason, "message": err.Error()})
	return reason
}
