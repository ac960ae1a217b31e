package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/chatvec/internal/pkg/response"
	"github.com/xxxsen/chatvec/internal/service"
)

type AdminHandler struct {
	sweeper *service.RetrySweeper
}

func NewAdminHandler(sweeper *service.RetrySweeper) *AdminHandler {
	return &AdminHandler{sweeper: sweeper}
}

// TriggerSweep runs the same routine the cron job runs. The sweeper admits one
// sweep at a time, so a trigger overlapping a cron tick gets a conflict
// response instead of double-processing records.
func (h *AdminHandler) TriggerSweep(c *gin.Context) {
	stats, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, stats)
}
