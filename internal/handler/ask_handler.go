package handler

import (
	"context"
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/insightai/internal/pkg/errcode"
	"github.com/xxxsen/insightai/internal/pkg/response"
	"github.com/xxxsen/insightai/internal/retrieval"
	"github.com/xxxsen/insightai/internal/service"
)

//go:embed static/index.html
var indexPage []byte

type Asker interface {
	Ask(ctx context.Context, question string, k int) (*service.AskResult, error)
	Search(ctx context.Context, query string, k int) (*retrieval.Result, error)
}

type AskHandler struct {
	rag Asker
}

func NewAskHandler(rag Asker) *AskHandler {
	return &AskHandler{rag: rag}
}

type askRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

func (h *AskHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TopK < 0 {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	result, err := h.rag.Ask(c.Request.Context(), req.Question, req.TopK)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *AskHandler) Search(c *gin.Context) {
	k, ok := queryInt(c, "k", 0)
	if !ok {
		response.Error(c, errcode.ErrInvalid, "invalid k")
		return
	}
	result, err := h.rag.Search(c.Request.Context(), c.Query("q"), k)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *AskHandler) Page(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexPage)
}
