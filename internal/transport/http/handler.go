package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/craftvine/payments-service/internal/repo"
	"github.com/craftvine/payments-service/internal/service"
)

// SignatureHeader is the provider's webhook signature header.
const SignatureHeader = "X-Monime-Signature"

func RegisterHandlers(r *gin.Engine, hooks *service.WebhookService, wallets *service.WalletService) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	r.POST("/api/payments/webhook", webhookHandler(hooks))

	v1 := r.Group("/v1")
	{
		v1.GET("/wallets/:userId/balance", balanceHandler(wallets))
		v1.GET("/wallets/:userId/entries", entriesHandler(wallets))
		v1.POST("/wallets/:userId/cashouts", cashoutHandler(wallets))
	}
}

func webhookHandler(hooks *service.WebhookService) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		res, err := hooks.Process(c.Request.Context(), body, c.GetHeader(SignatureHeader))
		if err != nil {
			switch {
			case errors.Is(err, service.ErrNotConfigured):
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "webhook not configured"})
			case errors.Is(err, service.ErrInvalidSignature):
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			case errors.Is(err, service.ErrMalformedEvent):
				c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
			}
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func balanceHandler(wallets *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		currency := c.DefaultQuery("currency", "SLE")
		bal, err := wallets.GetBalance(c, userID, currency)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": bal, "currency": service.ToWalletCurrency(currency)})
	}
}

func entriesHandler(wallets *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		sinceStr := c.DefaultQuery("since", time.Now().Add(-30*24*time.Hour).Format(time.RFC3339))
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		entries, err := wallets.GetHistory(c, userID, 100, since)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

type cashoutReq struct {
	Amount   string `json:"amount" binding:"required"`
	Currency string `json:"currency" binding:"required"`
}

func cashoutHandler(wallets *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cashoutReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		cashout, err := wallets.RequestCashout(c, c.Param("userId"), amt, req.Currency)
		if err != nil {
			switch {
			case errors.Is(err, repo.ErrInsufficientFunds),
				errors.Is(err, service.ErrInvalidAmount),
				errors.Is(err, service.ErrNoPaymentMethod):
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusCreated, cashout)
	}
}
