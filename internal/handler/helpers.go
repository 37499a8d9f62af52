package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/insightai/internal/ai"
	"github.com/xxxsen/insightai/internal/middleware"
	"github.com/xxxsen/insightai/internal/pkg/errcode"
	appErr "github.com/xxxsen/insightai/internal/pkg/errors"
	"github.com/xxxsen/insightai/internal/pkg/response"
)

func getOperator(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextOperatorKey)
	operator, _ := value.(string)
	return operator
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get(middleware.ContextRequestIDKey)
	logger := logutil.GetLogger(c.Request.Context()).With(
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
	)
	switch {
	case errors.Is(err, appErr.ErrNotReady):
		response.Error(c, errcode.ErrNotReady, "index not ready")
	case errors.Is(err, appErr.ErrNoRelevant):
		response.Error(c, errcode.ErrNoRelevant, "no relevant content")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrRebuildRunning):
		response.Error(c, errcode.ErrRebuildRunning, "rebuild already running")
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, errcode.ErrTooMany, "too many requests")
	case errors.Is(err, ai.ErrUnavailable):
		logger.Warn("ai provider unavailable", zap.Error(err))
		response.Error(c, errcode.ErrAIUnavailable, "ai not configured")
	case errors.Is(err, appErr.ErrQuery):
		logger.Error("query failed", zap.Error(err))
		response.Error(c, errcode.ErrQuery, "query failed")
	default:
		logger.Error("request failed", zap.Error(err))
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
