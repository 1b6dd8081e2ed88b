package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/craftvine/payments-service/internal/config"
	"github.com/craftvine/payments-service/internal/service"
)

func NewRouter(hooks *service.WebhookService, wallets *service.WalletService, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, hooks, wallets)
	return r
}
