package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/insightai/internal/ai"
	"github.com/xxxsen/insightai/internal/index"
	appErr "github.com/xxxsen/insightai/internal/pkg/errors"
)

type Config struct {
	TopK     int
	MinScore float64
	Timeout  time.Duration
}

// Result is what one query retrieved from a single generation.
type Result struct {
	Hits         []index.Hit `json:"hits"`
	Context      string      `json:"context"`
	Sources      []string    `json:"sources"`
	GenerationID string      `json:"generation_id"`
}

// Engine answers similarity queries against the published index. It never
// writes to the index and never waits on a rebuild.
type Engine struct {
	published *index.Published
	embedder  ai.IEmbedder
	cfg       Config
}

func NewEngine(published *index.Published, embedder ai.IEmbedder, cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	return &Engine{published: published, embedder: embedder, cfg: cfg}
}

func (e *Engine) TopK() int {
	return e.cfg.TopK
}

// Retrieve embeds query and returns up to k chunks from the generation that
// is current when the call starts. It returns errors.ErrNotReady before the
// first publish. A MinScore of zero disables the relevance floor. Embedding failures are wrapped in errors.ErrQuery and not retried.
func (e *Engine) Retrieve(ctx context.Context, query string, k int) (*Result, error) {
	gen := e.published.Current()
	if gen == nil {
		return nil, appErr.ErrNotReady
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", appErr.ErrInvalid)
	}
	if k <= 0 {
		k = e.cfg.TopK
	}
	res := &Result{Hits: []index.Hit{}, Sources: []string{}, GenerationID: gen.ID()}
	if gen.Len() == 0 {
		return res, nil
	}

	qctx := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	vectors, err := e.embedder.Embed(qctx, []string{query}, ai.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", appErr.ErrQuery, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embed query returned %d vectors", appErr.ErrQuery, len(vectors))
	}
	hits, err := gen.Search(vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrQuery, err)
	}

	texts := make([]string, 0, len(hits))
	for _, hit := range hits {
		if e.cfg.MinScore > 0 && hit.Score < e.cfg.MinScore {
			break
		}
		res.Hits = append(res.Hits, hit)
		texts = append(texts, hit.Chunk.Text)
		res.Sources = append(res.Sources, hit.Chunk.Source)
	}
	res.Context = strings.Join(texts, "\n")
	logutil.GetLogger(ctx).Debug("retrieval finished",
		zap.String("generation_id", gen.ID()),
		zap.Int("k", k),
		zap.Int("hits", len(res.Hits)))
	return res, nil
}
