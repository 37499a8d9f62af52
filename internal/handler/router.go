package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/insightai/internal/middleware"
)

type RouterDeps struct {
	Index         *IndexHandler
	Ask           *AskHandler
	JWTSecret     []byte
	AskRateWindow time.Duration
}

func RegisterRoutes(root *gin.RouterGroup, deps RouterDeps) {
	root.GET("/", deps.Ask.Page)

	api := root.Group("/api/v1")
	api.POST("/ask", middleware.RateLimit(deps.AskRateWindow), deps.Ask.Ask)
	api.GET("/search", deps.Ask.Search)
	api.GET("/index/status", deps.Index.Status)

	operator := api.Group("/index")
	operator.Use(middleware.JWTAuth(deps.JWTSecret))
	operator.POST("/rebuild", deps.Index.Rebuild)
	operator.POST("/urls", deps.Index.IndexURLs)
}
