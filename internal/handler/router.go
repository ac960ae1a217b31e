package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/chatvec/internal/middleware"
	"github.com/xxxsen/chatvec/internal/pkg/errcode"
	"github.com/xxxsen/chatvec/internal/pkg/response"
)

type RouterDeps struct {
	Search           *SearchHandler
	Embeddings       *EmbeddingHandler
	Admin            *AdminHandler
	JWTSecret        []byte
	SearchRateWindow time.Duration
	PingDB           func() error
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", func(c *gin.Context) {
		if deps.PingDB != nil {
			if err := deps.PingDB(); err != nil {
				response.Error(c, errcode.ErrInternal, "db unavailable")
				return
			}
		}
		response.Success(c, gin.H{"status": "ok"})
	})

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))

	authGroup.POST("/search", middleware.RateLimit(deps.SearchRateWindow), deps.Search.Search)
	authGroup.POST("/events/message-created", deps.Embeddings.MessageCreated)
	authGroup.POST("/embeddings/generate", deps.Embeddings.Generate)
	authGroup.POST("/admin/retry/sweep", deps.Admin.TriggerSweep)
}
