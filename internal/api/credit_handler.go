package api

import (
	"alcyxob/group-coach/internal/service"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultEntriesLimit = 50
	maxEntriesLimit     = 200
)

// CreditHandler exposes the caller's credit balance and ledger history.
type CreditHandler struct {
	ledger service.LedgerService
}

func NewCreditHandler(ledger service.LedgerService) *CreditHandler {
	return &CreditHandler{ledger: ledger}
}

func (h *CreditHandler) Balance(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	account, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, BalanceResponse{Balance: account.Balance, Exempt: h.ledger.IsExempt(userID)})
}

// Entries lists the newest ledger entries, ?limit= bounded to maxEntriesLimit.
func (h *CreditHandler) Entries(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	limit := int64(defaultEntriesLimit)
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			abortWithError(c, http.StatusBadRequest, "limit must be a positive integer.")
			return
		}
		limit = min(n, maxEntriesLimit)
	}
	entries, err := h.ledger.Entries(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
