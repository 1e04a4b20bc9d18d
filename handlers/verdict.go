package handlers

import (
	"net/http"
	"time"

	"cityflow/neurotraff/metrics"
	"cityflow/neurotraff/services"

	"github.com/gin-gonic/gin"
)

type VerdictHandler struct {
	service *services.VerdictService
	now     func() time.Time
}

func NewVerdictHandler(service *services.VerdictService) *VerdictHandler {
	return &VerdictHandler{service: service, now: time.Now}
}

// SelectedRoadRequest carries the road name. An empty or absent name is
// left to the catalog lookup and answers unknown_road.
type SelectedRoadRequest struct {
	Road string `json:"road"`
}

// SelectedRoad evaluates the current traffic verdict for one road.
func (h *VerdictHandler) SelectedRoad(c *gin.Context) {
	start := time.Now()
	defer func() {
		metrics.VerdictDuration.Observe(time.Since(start).Seconds())
	}()

	var req SelectedRoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.VerdictsServed.WithLabelValues(ReasonInvalidRequest).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": ReasonInvalidRequest, "message": err.Error()})
		return
	}

	verdict, err := h.service.Evaluate(c.Request.Context(), req.Road, h.now())
	if err != nil {
		reason := respondError(c, err)
		metrics.VerdictsServed.WithLabelValues(reason).Inc()
		return
	}

	metrics.VerdictsServed.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, verdict)
}
