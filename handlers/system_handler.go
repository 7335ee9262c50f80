package handlers

import (
	"github.com/bidhub/auction-backend/shared"
	"github.com/gofiber/fiber/v2"
)

// SystemHandler exposes the per-service operation counters.
type SystemHandler struct {
	sources []*shared.OperationMetrics
}

func NewSystemHandler(sources ...*shared.OperationMetrics) *SystemHandler {
	return &SystemHandler{sources: sources}
}

// GetMetrics returns a snapshot of every registered service's counters.
func (h *SystemHandler) GetMetrics(c *fiber.Ctx) error {
	data := make(fiber.Map, len(h.sources))
	for _, m := range h.sources {
		data[m.ServiceName()] = m.Snapshot()
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}
