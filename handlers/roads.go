package handlers

import (
	"net/http"

	"cityflow/neurotraff/roads"

	"github.com/gin-gonic/gin"
)

type RoadsHandler struct {
	catalog *roads.Catalog
}

func NewRoadsHandler(catalog *roads.Catalog) *RoadsHandler {
	return &RoadsHandler{catalog: catalog}
}

// GetRoads lists the monitored roads in declaration order.
func (h *RoadsHandler) GetRoads(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.catalog.Roads()})
}
