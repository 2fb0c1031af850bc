package settlement

import (
	"errors"
	"net/http"
	"strconv"

	"rechargehub/internal/api"
	"rechargehub/internal/auth"
	"rechargehub/internal/ledger"
	"rechargehub/internal/logger"
	"rechargehub/internal/plan"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
	}
}

// @Summary      Execute a recharge
// @Description  Debits the wallet or charges a card and records the transaction.
// @Tags         settlement
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key header string false "Caller-supplied transaction id; replays are rejected"
// @Param        request body settlement.RechargeRequest true "Recharge payload"
// @Success      200 {object} settlement.Result
// @Failure      400 {object} api.ErrorResponse
// @Failure      401 {object} api.ErrorResponse
// @Failure      402 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /recharge [post]
func (h *Handler) Recharge(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	var req RechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	result, err := h.service.ProcessRecharge(c.Request.Context(), userID, req)
	if err != nil {
		h.respondSettlementError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// @Summary      Top up the wallet
// @Tags         settlement
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key header string false "Caller-supplied transaction id; replays are rejected"
// @Param        request body settlement.TopUpRequest true "Top-up payload"
// @Success      200 {object} settlement.Result
// @Failure      400 {object} api.ErrorResponse
// @Failure      401 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /wallet/topup [post]
func (h *Handler) TopUp(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "amount_cents must be positive"})
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	result, err := h.service.ProcessTopUp(c.Request.Context(), userID, req)
	if err != nil {
		h.respondSettlementError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// @Summary      Get wallet balance
// @Tags         wallet
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} ledger.Wallet
// @Failure      401 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /wallet [get]
func (h *Handler) GetWallet(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	w, err := h.service.GetWallet(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load wallet"})
		return
	}

	c.JSON(http.StatusOK, w)
}

// @Summary      List my transactions
// @Tags         wallet
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query int false "Page size (default 50)"
// @Param        offset query int false "Offset"
// @Success      200 {array} ledger.Entry
// @Failure      401 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.service.GetHistory(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, entries)
}

// @Summary      Aggregate statistics
// @Description  Admin-only: entry counts and totals by kind and payment method.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} settlement.Stats
// @Failure      401 {object} api.ErrorResponse
// @Failure      403 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /admin/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// @Summary      Recent transactions across all users
// @Description  Admin-only: latest ledger entries with user details.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        limit query int false "Max entries (default 100)"
// @Success      200 {array} ledger.EntryWithUser
// @Failure      401 {object} api.ErrorResponse
// @Failure      403 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /admin/transactions [get]
func (h *Handler) ListAllTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	entries, err := h.service.GetRecentTransactions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, entries)
}

// respondSettlementError translates the settlement error taxonomy into HTTP
// statuses. Anything outside the taxonomy is a server error with no detail
// leaked to the caller.
func (h *Handler) respondSettlementError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "amount must be positive"})
	case errors.Is(err, ErrUnknownPaymentMethod):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "payment method must be wallet or card"})
	case errors.Is(err, ledger.ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, api.ErrorResponse{Error: "insufficient wallet balance"})
	case errors.Is(err, ledger.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "account not found"})
	case errors.Is(err, plan.ErrPlanNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "plan not found"})
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: "transaction already processed"})
	default:
		logger.Errorf("Settlement failed: %v", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "settlement failed"})
	}
}
