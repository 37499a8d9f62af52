package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/insightai/internal/config"
	"github.com/xxxsen/insightai/internal/index"
	"github.com/xxxsen/insightai/internal/lifecycle"
	"github.com/xxxsen/insightai/internal/pkg/errcode"
	appErr "github.com/xxxsen/insightai/internal/pkg/errors"
	"github.com/xxxsen/insightai/internal/pkg/response"
	"github.com/xxxsen/insightai/internal/source"
)

const maxAdhocURLs = 10

type IndexManager interface {
	RunCycle(ctx context.Context) lifecycle.Outcome
	RunWithSources(ctx context.Context, sources []source.Source) lifecycle.Outcome
	State() lifecycle.State
	LastOutcome() (lifecycle.Outcome, bool)
	Published() *index.Published
}

type IndexHandler struct {
	manager     IndexManager
	fetch       config.FetchConfig
	nextRebuild func() (time.Time, bool)
}

func NewIndexHandler(manager IndexManager, fetch config.FetchConfig, nextRebuild func() (time.Time, bool)) *IndexHandler {
	return &IndexHandler{manager: manager, fetch: fetch, nextRebuild: nextRebuild}
}

type indexURLsRequest struct {
	URLs []string `json:"urls"`
}

type generationView struct {
	ID        string    `json:"id"`
	BuiltAt   time.Time `json:"built_at"`
	Chunks    int       `json:"chunks"`
	Dimension int       `json:"dimension"`
}

type indexStatusResponse struct {
	State       lifecycle.State    `json:"state"`
	Generation  *generationView    `json:"generation"`
	LastOutcome *lifecycle.Outcome `json:"last_outcome,omitempty"`
	NextRebuild *time.Time         `json:"next_rebuild,omitempty"`
}

func (h *IndexHandler) Rebuild(c *gin.Context) {
	logutil.GetLogger(c.Request.Context()).Info("rebuild requested", zap.String("operator", getOperator(c)))
	h.reply(c, h.manager.RunCycle(c.Request.Context()))
}

func (h *IndexHandler) IndexURLs(c *gin.Context) {
	var req indexURLsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	sources, err := h.pageSources(req.URLs)
	if err != nil {
		handleError(c, err)
		return
	}
	logutil.GetLogger(c.Request.Context()).Info("url indexing requested",
		zap.String("operator", getOperator(c)), zap.Int("urls", len(sources)))
	h.reply(c, h.manager.RunWithSources(c.Request.Context(), sources))
}

func (h *IndexHandler) pageSources(urls []string) ([]source.Source, error) {
	seen := make(map[string]bool, len(urls))
	out := make([]source.Source, 0, len(urls))
	for _, raw := range urls {
		u := strings.TrimSpace(raw)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		src, err := source.NewPage(u, u, "", h.fetch)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", appErr.ErrInvalid, err)
		}
		out = append(out, src)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: at least one url is required", appErr.ErrInvalid)
	}
	if len(out) > maxAdhocURLs {
		return nil, fmt.Errorf("%w: at most %d urls are allowed", appErr.ErrInvalid, maxAdhocURLs)
	}
	return out, nil
}

func (h *IndexHandler) reply(c *gin.Context, out lifecycle.Outcome) {
	switch out.Status {
	case lifecycle.StatusRejected:
		handleError(c, appErr.ErrRebuildRunning)
	case lifecycle.StatusFailed:
		response.Error(c, errcode.ErrRebuildFailed, fmt.Sprintf("rebuild failed at %s: %s", out.Stage, out.Error))
	default:
		response.Success(c, out)
	}
}

func (h *IndexHandler) Status(c *gin.Context) {
	resp := indexStatusResponse{State: h.manager.State()}
	if gen := h.manager.Published().Current(); gen != nil {
		resp.Generation = &generationView{
			ID:        gen.ID(),
			BuiltAt:   gen.BuiltAt(),
			Chunks:    gen.Len(),
			Dimension: gen.Dimension(),
		}
	}
	if out, ok := h.manager.LastOutcome(); ok {
		resp.LastOutcome = &out
	}
	if h.nextRebuild != nil {
		if next, ok := h.nextRebuild(); ok {
			resp.NextRebuild = &next
		}
	}
	response.Success(c, resp)
}
