package handler

import (
	"errors"
	"net/http"
	"strconv"

	"solstore/internal/config"
	"solstore/internal/database"
	"solstore/internal/deposit"
	"solstore/internal/model"
	"solstore/internal/price"
	"solstore/internal/solana"

	"github.com/gin-gonic/gin"
)

// Handler wires HTTP requests to the storage and deposit layers.
type Handler struct {
	db       *database.Database
	deposits *deposit.Service
	rates    *price.Source
	chain    *solana.Client
	cfg      *config.Config
}

func New(db *database.Database, deposits *deposit.Service, rates *price.Source, chain *solana.Client, cfg *config.Config) *Handler {
	return &Handler{
		db:       db,
		deposits: deposits,
		rates:    rates,
		chain:    chain,
		cfg:      cfg,
	}
}

// AdminAuth checks the X-API-Key header against the configured admin key.
func (h *Handler) AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if h.cfg.AdminAPIKey == "" || apiKey != h.cfg.AdminAPIKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.Response{
				Success: false,
				Error:   "invalid API key",
			})
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, model.Response{
			Success: false,
			Error:   "invalid user id",
		})
		return 0, false
	}
	return id, true
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, model.Response{Success: true, Data: data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, model.Response{Success: false, Error: msg})
}

// CreateUser registers a Telegram user and provisions a deposit wallet.
// Re-registering an existing user returns the existing account.
func (h *Handler) CreateUser(c *gin.Context) {
	var req model.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	var referredBy *int64
	if req.ReferralCode != "" {
		referrerID, err := h.db.GetUserIDByReferralCode(req.ReferralCode)
		if err == nil && referrerID != req.ID {
			referredBy = &referrerID
		}
	}

	address, encryptedKey, err := h.chain.CreateWallet()
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to create wallet")
		return
	}

	user, err := h.db.CreateUser(req.ID, req.Username, address, encryptedKey, referredBy)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to create user")
		return
	}

	ok(c, user)
}

// GetUser returns the user's account including the EUR balance.
func (h *Handler) GetUser(c *gin.Context) {
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

	ok(c, user)
}

// GetRate returns the current SOL/EUR rate.
func (h *Handler) GetRate(c *gin.Context) {
	ok(c, gin.H{"sol_eur": h.rates.Rate(c.Request.Context())})
}

// GetTransactions returns the user's transaction history.
func (h *Handler) GetTransactions(c *gin.Context) {
	id, valid := userID(c)
	if !valid {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	txType := model.TxType(c.Query("type"))

	txs, err := h.db.UserTransactions(id, txType, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to get transactions")
		return
	}

	ok(c, txs)
}

// AdjustBalance is the admin-only additive balance correction.
func (h *Handler) AdjustBalance(c *gin.Context) {
	id, valid := userID(c)
	if !valid {
		return
	}

	var req model.AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	tx, err := h.db.AdjustBalance(id, req.DeltaEUR, req.Reason)
	if errors.Is(err, database.ErrNotFound) {
		fail(c, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to adjust balance")
		return
	}

	ok(c, tx)
}

// BlockUser blocks or unblocks a user (admin only). Blocked users are
// skipped by the deposit poller.
func (h *Handler) BlockUser(c *gin.Context) {
	id, valid := userID(c)
	if !valid {
		return
	}

	var req struct {
		Blocked *bool `json:"blocked" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.db.SetUserBlocked(id, *req.Blocked)
	if errors.Is(err, database.ErrNotFound) {
		fail(c, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to update user")
		return
	}

	ok(c, gin.H{"blocked": *req.Blocked})
}
