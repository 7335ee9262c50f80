package handlers

import (
	"time"

	"github.com/bidhub/auction-backend/models"
	"github.com/bidhub/auction-backend/services"
	"github.com/bidhub/auction-backend/shared"
	"github.com/gofiber/fiber/v2"
)

type AuctionHandler struct {
	Service   *services.AuctionService
	Scheduler *services.AuctionScheduler
}

func NewAuctionHandler(service *services.AuctionService, scheduler *services.AuctionScheduler) *AuctionHandler {
	return &AuctionHandler{Service: service, Scheduler: scheduler}
}

type createAuctionRequest struct {
	ProductName        string    `json:"product_name"`
	ProductDescription string    `json:"product_description"`
	SellerID           int64     `json:"seller_id"`
	StartingTime       time.Time `json:"starting_time"`
	EndingTime         time.Time `json:"ending_time"`
}

// CreateAuction registers a new auction and arms its settlement trigger.
func (h *AuctionHandler) CreateAuction(c *fiber.Ctx) error {
	var req createAuctionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}
	if req.ProductName == "" || !req.EndingTime.After(req.StartingTime) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "product_name required and ending_time must be after starting_time",
		})
	}

	auction, err := h.Service.CreateAuction(c.Context(), &models.Auction{
		ProductName:        req.ProductName,
		ProductDescription: req.ProductDescription,
		SellerID:           req.SellerID,
		StartingTime:       req.StartingTime,
		EndingTime:         req.EndingTime,
	})
	if err != nil {
		return errorResponse(c, err)
	}

	h.Scheduler.ScheduleAuctionEnd(auction.ID, auction.EndingTime)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    auction,
	})
}

// GetLiveAuctions lists auctions still open or broadcasting.
func (h *AuctionHandler) GetLiveAuctions(c *fiber.Ctx) error {
	auctions, err := h.Service.ListLiveAuctions(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    auctions,
	})
}

// GetAuction returns one auction with its bids.
func (h *AuctionHandler) GetAuction(c *fiber.Ctx) error {
	auctionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid auction id",
		})
	}

	auction, err := h.Service.GetAuctionWithBids(c.Context(), int64(auctionID))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    auction,
	})
}

type placeBidRequest struct {
	BidderID int64 `json:"bidder_id"`
	Amount   int64 `json:"amount"`
}

// PlaceBid appends a bid to an open auction.
func (h *AuctionHandler) PlaceBid(c *fiber.Ctx) error {
	auctionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid auction id",
		})
	}

	var req placeBidRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}
	if req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "amount must be positive",
		})
	}

	bid, err := h.Service.PlaceBid(c.Context(), &models.Bid{
		AuctionID: int64(auctionID),
		BidderID:  req.BidderID,
		Amount:    req.Amount,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    bid,
	})
}

type registerAlarmRequest struct {
	MemberID int64 `json:"member_id"`
}

// RegisterAlarm arms a starting-soon alarm for a member. Conflicts when the
// member already holds one for this auction.
func (h *AuctionHandler) RegisterAlarm(c *fiber.Ctx) error {
	auctionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid auction id",
		})
	}

	var req registerAlarmRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}

	auction, err := h.Service.GetAuction(c.Context(), int64(auctionID))
	if err != nil {
		return errorResponse(c, err)
	}

	if !h.Scheduler.RegisterAlarm(auction, req.MemberID) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"error":   "alarm already registered",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"auction_id": auction.ID,
			"member_id":  req.MemberID,
		},
	})
}

// errorResponse maps service error codes onto HTTP statuses with the
// standard envelope.
func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch shared.CodeOf(err) {
	case shared.CodeNotFound:
		status = fiber.StatusNotFound
	case shared.CodeNoChannelAvailable:
		status = fiber.StatusConflict
	case shared.CodeAlreadySettled:
		status = fiber.StatusConflict
	case shared.CodeTooEarly:
		status = fiber.StatusUnprocessableEntity
	case shared.CodeInsufficientFunds:
		status = fiber.StatusPaymentRequired
	case shared.CodeRemoteProviderFailure:
		status = fiber.StatusBadGateway
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
	})
}
