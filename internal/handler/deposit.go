package handler

import (
	"errors"
	"net/http"
	"strconv"

	"solstore/internal/database"
	"solstore/internal/deposit"
	"solstore/internal/model"

	"github.com/gin-gonic/gin"
)

func (h *Handler) depositResponse(req *model.DepositRequest, walletAddress string) model.DepositResponse {
	return model.DepositResponse{
		ID:            req.ID,
		EURAmount:     req.EURAmount,
		SOLAmount:     req.SOLAmount,
		ReservedRate:  req.ReservedRate,
		Status:        req.Status,
		WalletAddress: walletAddress,
		ExpiresAt:     req.ExpiresAt,
	}
}

// CreateDeposit opens a rate reservation for an EUR top-up. If the user
// already has an open reservation it is returned with 409 so the front-end
// re-renders the existing countdown instead of opening a second one.
func (h *Handler) CreateDeposit(c *gin.Context) {
	id, valid := userID(c)
	if !valid {
		return
	}

	var req model.CreateDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.db.GetUser(id)
	if errors.Is(err, database.ErrNotFound) {
		fail(c, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to get user")
		return
	}

	dep, err := h.deposits.CreateRequest(c.Request.Context(), id, req.AmountEUR)
	if errors.Is(err, deposit.ErrAmountTooLow) {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, deposit.ErrRequestActive) {
		c.JSON(http.StatusConflict, model.Response{
			Success: false,
			Error:   err.Error(),
			Data:    h.depositResponse(dep, user.WalletAddress),
		})
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to create deposit request")
		return
	}

	ok(c, h.depositResponse(dep, user.WalletAddress))
}

// GetActiveDeposit returns the user's open reservation, if any.
func (h *Handler) GetActiveDeposit(c *gin.Context) {
	id, valid := userID(c)
	if !valid {
		return
	}

	user, err := h.db.GetUser(id)
	if errors.Is(err, database.ErrNotFound) {
		fail(c, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to get user")
		return
	}

	dep, err := h.deposits.ActiveRequest(id)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to get deposit request")
		return
	}
	if dep == nil {
		fail(c, http.StatusNotFound, "no active deposit request")
		return
	}

	ok(c, h.depositResponse(dep, user.WalletAddress))
}

// CancelDeposit cancels the user's pending reservation.
func (h *Handler) CancelDeposit(c *gin.Context) {
	id, valid := userID(c)
	if !valid {
		return
	}

	depositID, err := strconv.ParseInt(c.Param("deposit_id"), 10, 64)
	if err != nil || depositID <= 0 {
		fail(c, http.StatusBadRequest, "invalid deposit id")
		return
	}

	dep, err := h.db.GetDepositRequest(depositID)
	if errors.Is(err, database.ErrNotFound) {
		fail(c, http.StatusNotFound, "deposit request not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to get deposit request")
		return
	}
	if dep.UserID != id {
		fail(c, http.StatusForbidden, "deposit request belongs to another user")
		return
	}

	err = h.deposits.Cancel(depositID)
	if errors.Is(err, database.ErrNotPending) {
		fail(c, http.StatusConflict, "deposit request is not pending")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to cancel deposit request")
		return
	}

	ok(c, gin.H{"cancelled": depositID})
}

// GetDepositHistory returns the user's recent reservations.
func (h *Handler) GetDepositHistory(c *gin.Context) {
	id, valid := userID(c)
	if !valid {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 10
	}

	history, err := h.deposits.History(id, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to get deposit history")
		return
	}

	ok(c, history)
}
