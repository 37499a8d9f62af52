package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/insightai/internal/pkg/errors"
	"github.com/xxxsen/insightai/internal/retrieval"
)

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (*retrieval.Result, error)
}

type AnswerComposer interface {
	Answer(ctx context.Context, contextText string, question string) (string, error)
}

type AskResult struct {
	Question     string   `json:"question"`
	Answer       string   `json:"answer"`
	AnswerHTML   string   `json:"answer_html"`
	Context      string   `json:"context"`
	ChunksUsed   []string `json:"chunks_used"`
	GenerationID string   `json:"generation_id"`
	Cached       bool     `json:"cached"`
}

type RAGServiceConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

type RAGService struct {
	retriever Retriever
	composer  AnswerComposer
	renderer  *markdownRenderer
	cache     *expirable.LRU[string, AskResult]
}

func NewRAGService(retriever Retriever, composer AnswerComposer, cfg RAGServiceConfig) *RAGService {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &RAGService{
		retriever: retriever,
		composer:  composer,
		renderer:  newMarkdownRenderer(),
		cache:     expirable.NewLRU[string, AskResult](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

// Ask retrieves context for question and has the composer answer from it.
// It fails with errors.ErrNotReady before the first index is published and
// with errors.ErrNoRelevant when retrieval finds nothing.
func (s *RAGService) Ask(ctx context.Context, question string, k int) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", appErr.ErrInvalid)
	}
	logger := logutil.GetLogger(ctx).With(zap.Int("k", k))
	res, err := s.retriever.Retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}
	if len(res.Hits) == 0 {
		return nil, appErr.ErrNoRelevant
	}
	key := askCacheKey(res.GenerationID, k, question)
	if cached, ok := s.cache.Get(key); ok {
		logger.Debug("answer cache hit", zap.String("generation_id", res.GenerationID))
		cached.Cached = true
		cached.ChunksUsed = slices.Clone(cached.ChunksUsed)
		return &cached, nil
	}
	out := AskResult{
		Question:     question,
		Context:      res.Context,
		ChunksUsed:   slices.Clone(res.Sources),
		GenerationID: res.GenerationID,
	}
	if s.composer == nil {
		return &out, nil
	}
	answer, err := s.composer.Answer(ctx, res.Context, question)
	if err != nil {
		logger.Error("compose answer failed", zap.Error(err))
		return nil, err
	}
	out.Answer = answer
	if html, err := s.renderer.Render(answer); err != nil {
		logger.Warn("render answer failed", zap.Error(err))
	} else {
		out.AnswerHTML = html
	}
	cached := out
	cached.ChunksUsed = slices.Clone(out.ChunksUsed)
	s.cache.Add(key, cached)
	return &out, nil
}

func (s *RAGService) Search(ctx context.Context, query string, k int) (*retrieval.Result, error) {
	return s.retriever.Retrieve(ctx, query, k)
}

func askCacheKey(generationID string, k int, question string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(question)))
	return generationID + ":" + strconv.Itoa(k) + ":" + hex.EncodeToString(sum[:])
}
