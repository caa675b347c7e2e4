package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"solstore/internal/database"
	"solstore/internal/model"

	"github.com/gin-gonic/gin"
)

const referralBonusPercent = 10 // of the referred user's first purchase

// Withdraw debits the EUR balance and queues an on-chain SOL transfer. The
// gross amount is taken immediately; the monitor converts at the live rate
// when it sends, minus the service fee.
func (h *Handler) Withdraw(c *gin.Context) {
	id, valid := userID(c)
	if !valid {
		return
	}

	var req model.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	fee := h.cfg.Withdrawal.FeePercent
	desc := fmt.Sprintf("Withdrawal to %s (fee %.1f%%)", req.ToAddress, fee)

	tx, err := h.db.CreateWithdrawal(id, req.AmountEUR, req.ToAddress, desc)
	if errors.Is(err, database.ErrInsufficientFunds) {
		fail(c, http.StatusBadRequest, "insufficient balance")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to create withdrawal")
		return
	}

	ok(c, tx)
}

// Purchase debits the balance for a storefront purchase. The referred
// user's first purchase pays a bonus to the referrer.
func (h *Handler) Purchase(c *gin.Context) {
	id, valid := userID(c)
	if !valid {
		return
	}

	var req model.PurchaseRequest
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

	tx, err := h.db.CreatePurchase(id, req.AmountEUR, req.Description)
	if errors.Is(err, database.ErrInsufficientFunds) {
		fail(c, http.StatusBadRequest, "insufficient balance")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to create purchase")
		return
	}

	h.payReferralBonus(user, req.AmountEUR)

	ok(c, tx)
}

// payReferralBonus credits the referrer after the referred user's first
// purchase. Best effort: a bonus failure never fails the purchase.
func (h *Handler) payReferralBonus(user *model.User, purchaseEUR float64) {
	if user.ReferredBy == nil {
		return
	}

	count, err := h.db.CountCompletedPurchases(user.ID)
	if err != nil || count != 1 {
		return
	}

	bonus := purchaseEUR * referralBonusPercent / 100
	desc := fmt.Sprintf("Referral bonus: %d%% of first purchase by user %d", referralBonusPercent, user.ID)
	if err := h.db.AddReferralBonus(*user.ReferredBy, user.ID, bonus, desc); err != nil {
		log.Printf("handler: referral bonus for user %d failed: %v", *user.ReferredBy, err)
	}
}
