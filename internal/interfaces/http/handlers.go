package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/roshkins/sputnik-dao-contract/internal/domain"
	"github.com/roshkins/sputnik-dao-contract/pkg/logger"
)

// CallerHeader names the account making the call. The service trusts it as
// sent; an authenticating proxy in front of the API must set it.
const CallerHeader = "X-Account-ID"

type Handler struct {
	service domain.StakingService
	logger  *logger.Logger
}

func NewHandler(service domain.StakingService, logger *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) OnTransfer(c *gin.Context) {
	var req OnTransferRequest
	if !h.bind(c, &req) {
		return
	}

	err := h.service.OnTransfer(c.Request.Context(), domain.IncomingTransfer{
		Sender:        domain.AccountID(req.SenderID),
		PreviousOwner: domain.AccountID(req.PreviousOwnerID),
		Token:         domain.TokenID(req.TokenID),
		Message:       req.Msg,
	})
	if err != nil {
		h.writeError(c, "Failed to accept transfer", err)
		return
	}

	// false tells the custody service to keep the token with us
	c.JSON(http.StatusOK, gin.H{"return_token": false})
}

func (h *Handler) Register(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req RegisterRequest
	if !h.bind(c, &req) {
		return
	}
	weight, ok := h.amount(c, req.Weight)
	if !ok {
		return
	}

	if err := h.service.Register(c.Request.Context(), caller, domain.TokenID(req.TokenID), weight); err != nil {
		h.writeError(c, "Failed to register token", err)
		return
	}

	c.JSON(http.StatusOK, TokenWeight{TokenID: req.TokenID, Weight: weight.String()})
}

func (h *Handler) Delegate(c *gin.Context) {
	h.delegation(c, "Failed to delegate", h.service.Delegate)
}

func (h *Handler) Undelegate(c *gin.Context) {
	h.delegation(c, "Failed to undelegate", h.service.Undelegate)
}

type delegationCall func(ctx context.Context, sender, target domain.AccountID, token domain.TokenID, amount domain.Amount) error

func (h *Handler) delegation(c *gin.Context, failure string, call delegationCall) {
	sender, ok := h.caller(c)
	if !ok {
		return
	}

	var req DelegationRequest
	if !h.bind(c, &req) {
		return
	}
	amount, ok := h.amount(c, req.Amount)
	if !ok {
		return
	}

	if err := call(c.Request.Context(), sender, domain.AccountID(req.TargetID), domain.TokenID(req.TokenID), amount); err != nil {
		h.writeError(c, failure, err)
		return
	}

	c.JSON(http.StatusOK, newAccountResponse(h.service.GetAccount(sender)))
}

func (h *Handler) Withdraw(c *gin.Context) {
	sender, ok := h.caller(c)
	if !ok {
		return
	}

	var req WithdrawRequest
	if !h.bind(c, &req) {
		return
	}
	amount, ok := h.amount(c, req.Amount)
	if !ok {
		return
	}

	pending, err := h.service.Withdraw(c.Request.Context(), sender, domain.TokenID(req.TokenID), amount, req.Memo, req.Payload)
	if err != nil {
		h.writeError(c, "Failed to start withdrawal", err)
		return
	}

	c.JSON(http.StatusAccepted, WithdrawResponse{
		WithdrawalID: pending.ID.String(),
		Status:       "pending",
	})
}

func (h *Handler) GetTotalSupply(c *gin.Context) {
	c.JSON(http.StatusOK, AmountResponse{Amount: h.service.TotalSupply().String()})
}

func (h *Handler) GetTotalVotingPower(c *gin.Context) {
	c.JSON(http.StatusOK, AmountResponse{Amount: h.service.TotalVotingPower().String()})
}

func (h *Handler) GetBalance(c *gin.Context) {
	account := domain.AccountID(c.Param("id"))
	c.JSON(http.StatusOK, BalanceResponse{
		AccountID: string(account),
		Balance:   h.service.BalanceOf(account).String(),
	})
}

func (h *Handler) GetAccount(c *gin.Context) {
	c.JSON(http.StatusOK, newAccountResponse(h.service.GetAccount(domain.AccountID(c.Param("id")))))
}

func (h *Handler) GetRegistry(c *gin.Context) {
	c.JSON(http.StatusOK, newRegistryResponse(h.service.Weights()))
}

func (h *Handler) GetTokenWeight(c *gin.Context) {
	token := c.Param("token")
	weight, ok := h.service.WeightOf(domain.TokenID(token))
	if !ok {
		h.respondError(c, http.StatusNotFound, domain.ErrInvalidToken)
		return
	}

	c.JSON(http.StatusOK, TokenWeight{TokenID: token, Weight: weight.String()})
}

func (h *Handler) GetWithdrawal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid withdrawal id",
			Code:  "INVALID_WITHDRAWAL_ID",
		})
		return
	}

	pending, ok := h.service.GetWithdrawal(id)
	if !ok {
		h.respondError(c, http.StatusNotFound, domain.ErrWithdrawalNotFound)
		return
	}

	c.JSON(http.StatusOK, pending)
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"total_supply": h.service.TotalSupply().String(),
	})
}

func (h *Handler) GetReadiness(c *gin.Context) {
	if err := h.service.Ready(c.Request.Context()); err != nil {
		h.logger.Errorw("Readiness check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

func (h *Handler) caller(c *gin.Context) (domain.AccountID, bool) {
	caller := c.GetHeader(CallerHeader)
	if caller == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error: "Missing " + CallerHeader + " header",
			Code:  "MISSING_CALLER",
		})
		return "", false
	}
	return domain.AccountID(caller), true
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.logger.Debugw("Invalid request body", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return false
	}
	return true
}

func (h *Handler) amount(c *gin.Context, raw string) (domain.Amount, bool) {
	amount, err := domain.ParseAmount(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Amount must be a decimal unsigned 64-bit integer",
			Code:  domain.ErrorCode(domain.ErrInvalidAmount),
		})
		return 0, false
	}
	return amount, true
}

func (h *Handler) writeError(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Errorw(msg, "path", c.FullPath(), "error", err)
	} else {
		h.logger.Infow(msg, "path", c.FullPath(), "error", err)
	}
	h.respondError(c, status, err)
}

func (h *Handler) respondError(c *gin.Context, status int, err error) {
	body := ErrorResponse{Error: err.Error(), Code: domain.ErrorCode(err)}
	if status == http.StatusInternalServerError {
		body.Error = "Internal server error"
	}
	c.JSON(status, body)
}

var errorStatuses = []struct {
	err    error
	status int
}{
	{domain.ErrNotOwner, http.StatusForbidden},
	{domain.ErrUnauthorizedCallback, http.StatusForbidden},
	{domain.ErrInvalidToken, http.StatusBadRequest},
	{domain.ErrInvalidMessage, http.StatusBadRequest},
	{domain.ErrInvalidAmount, http.StatusBadRequest},
	{domain.ErrInvalidAccount, http.StatusBadRequest},
	{domain.ErrAccountNotFound, http.StatusNotFound},
	{domain.ErrWithdrawalNotFound, http.StatusNotFound},
	{domain.ErrInsufficientBalance, http.StatusConflict},
	{domain.ErrInsufficientDelegation, http.StatusConflict},
	{domain.ErrCooldownActive, http.StatusConflict},
	{domain.ErrAmountOverflow, http.StatusUnprocessableEntity},
	{domain.ErrNotInitialized, http.StatusServiceUnavailable},
}

func statusFor(err error) int {
	for _, es := range errorStatuses {
		if errors.Is(err, es.err) {
			return es.status
		}
	}
	return http.StatusInternalServerError
}
