package handlers

import (
	"github.com/bidhub/auction-backend/services"
	"github.com/gofiber/fiber/v2"
)

type LiveHandler struct {
	Service  *services.LiveAuctionService
	Channels *services.ChannelAllocator
}

func NewLiveHandler(service *services.LiveAuctionService, channels *services.ChannelAllocator) *LiveHandler {
	return &LiveHandler{Service: service, Channels: channels}
}

// GetChannel returns the live channel bound to the auction.
func (h *LiveHandler) GetChannel(c *fiber.Ctx) error {
	auctionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid auction id",
		})
	}

	channel, err := h.Channels.ChannelForAuction(c.Context(), int64(auctionID))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    channel,
	})
}

// CreateChannel provisions a broadcast channel for the auction.
func (h *LiveHandler) CreateChannel(c *fiber.Ctx) error {
	auctionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid auction id",
		})
	}

	channel, err := h.Service.CreateLiveChannel(c.Context(), int64(auctionID))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    channel,
	})
}

// DeleteChannel tears down the auction's broadcast channel.
func (h *LiveHandler) DeleteChannel(c *fiber.Ctx) error {
	auctionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid auction id",
		})
	}

	if err := h.Service.DeleteLiveChannel(c.Context(), int64(auctionID)); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
	})
}

// StartLive pushes the auction's broadcast on air.
func (h *LiveHandler) StartLive(c *fiber.Ctx) error {
	auctionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid auction id",
		})
	}

	if err := h.Service.StartLive(c.Context(), int64(auctionID)); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
	})
}

// EndLive takes the auction's broadcast off air.
func (h *LiveHandler) EndLive(c *fiber.Ctx) error {
	auctionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid auction id",
		})
	}

	if err := h.Service.EndLive(c.Context(), int64(auctionID)); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
	})
}
