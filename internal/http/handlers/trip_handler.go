// README: Trip estimate handler.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/modules/trip"
	"carpool/internal/types"
)

type TripHandler struct {
	trips *trip.Service
}

func NewTripHandler(svc *trip.Service) *TripHandler {
	return &TripHandler{trips: svc}
}

type estimateReq struct {
	Origin      types.Point `json:"origin"`
	Destination types.Point `json:"destination"`
}

func (h *TripHandler) Estimate(c *gin.Context) {
	var req estimateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	t, err := h.trips.Estimate(c.Request.Context(), req.Origin, req.Destination)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"distance_miles":   t.DistanceMiles,
		"duration_minutes": t.DurationMinutes,
	})
}
