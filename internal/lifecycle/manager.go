package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/insightai/internal/ai"
	"github.com/xxxsen/insightai/internal/chunker"
	"github.com/xxxsen/insightai/internal/filestore"
	"github.com/xxxsen/insightai/internal/index"
	"github.com/xxxsen/insightai/internal/model"
	appErr "github.com/xxxsen/insightai/internal/pkg/errors"
	"github.com/xxxsen/insightai/internal/source"
)

type Config struct {
	FetchTimeout     time.Duration
	FetchConcurrency int
	BatchSize        int
	MaxAttempts      int
	Backoff          time.Duration
	MaxBackoff       time.Duration
	EmbedTimeout     time.Duration
	IndexKey         string
	PersistTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 15 * time.Second
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	if c.MaxBackoff < c.Backoff {
		c.MaxBackoff = c.Backoff
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = 30 * time.Second
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = time.Minute
	}
	return c
}

// Manager owns the write path of the published index. It runs at most one
// fetch, chunk, embed, build and publish cycle at a time.
type Manager struct {
	sources   []source.Source
	splitter  *chunker.Splitter
	embedder  ai.IEmbedder
	published *index.Published
	store     filestore.Store
	cfg       Config

	running atomic.Bool

	mu    sync.RWMutex
	state State
	last  *Outcome
}

func NewManager(
	sources []source.Source,
	splitter *chunker.Splitter,
	embedder ai.IEmbedder,
	published *index.Published,
	store filestore.Store,
	cfg Config,
) *Manager {
	return &Manager{
		sources:   sources,
		splitter:  splitter,
		embedder:  embedder,
		published: published,
		store:     store,
		cfg:       cfg.withDefaults(),
		state:     StateIdle,
	}
}

func (m *Manager) Published() *index.Published {
	return m.published
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) LastOutcome() (Outcome, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return Outcome{}, false
	}
	return *m.last, true
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// RunCycle rebuilds the index from the configured sources.
func (m *Manager) RunCycle(ctx context.Context) Outcome {
	return m.RunWithSources(ctx, m.sources)
}

// RunWithSources rebuilds the index from sources, replacing whatever is
// published on success. A call made while another cycle is in flight is
// rejected with errors.ErrRebuildRunning. Once started, a cycle is not
// cancelled by ctx; every remote call carries its own timeout instead.
func (m *Manager) RunWithSources(ctx context.Context, sources []source.Source) Outcome {
	if !m.running.CompareAndSwap(false, true) {
		logutil.GetLogger(ctx).Info("index rebuild rejected: another cycle is running")
		return Outcome{Status: StatusRejected, Err: appErr.ErrRebuildRunning, Error: appErr.ErrRebuildRunning.Error()}
	}
	defer m.running.Store(false)

	ctx = context.WithoutCancel(ctx)
	out := &Outcome{CycleID: uuid.NewString(), StartedAt: time.Now()}
	logger := logutil.GetLogger(ctx).With(zap.String("cycle_id", out.CycleID))
	logger.Info("index rebuild started", zap.Int("sources", len(sources)))

	m.cycle(ctx, logger, sources, out)

	out.Duration = time.Since(out.StartedAt)
	out.DurationMillis = out.Duration.Milliseconds()
	if out.Err != nil {
		out.Error = out.Err.Error()
	}
	fields := []zap.Field{
		zap.String("status", string(out.Status)),
		zap.Int("documents", out.Documents),
		zap.Int("chunks", out.Chunks),
		zap.Int("embed_attempts", out.EmbedAttempts),
		zap.Duration("duration", out.Duration),
	}
	if out.Status == StatusFailed {
		logger.Error("index rebuild failed", append(fields, zap.String("stage", string(out.Stage)), zap.Error(out.Err))...)
	} else {
		logger.Info("index rebuild finished", append(fields, zap.String("generation_id", out.GenerationID))...)
	}

	m.mu.Lock()
	m.state = StateIdle
	snapshot := *out
	m.last = &snapshot
	m.mu.Unlock()
	return *out
}

func (m *Manager) cycle(ctx context.Context, logger *zap.Logger, sources []source.Source, out *Outcome) {
	fail := func(stage State, err error) {
		m.setState(StateFailed)
		out.Status = StatusFailed
		out.Stage = stage
		out.Err = err
	}

	m.setState(StateFetching)
	docs, failed := m.fetch(ctx, logger, sources)
	out.Documents = len(docs)
	out.FailedSources = failed
	if len(docs) == 0 {
		if len(failed) > 0 {
			fail(StateFetching, fmt.Errorf("%w: all %d sources failed", appErr.ErrSourceFetch, len(failed)))
			return
		}
		out.Status = StatusNoop
		return
	}

	m.setState(StateChunking)
	chunks, skipped := m.chunk(logger, docs)
	out.Chunks = len(chunks)
	out.SkippedDocuments = skipped
	if len(chunks) == 0 {
		out.Status = StatusNoop
		return
	}

	m.setState(StateEmbedding)
	vectors, err := m.embed(ctx, logger, chunks, &out.EmbedAttempts)
	if err != nil {
		fail(StateEmbedding, err)
		return
	}

	m.setState(StateBuilding)
	entries := make([]index.Entry, len(chunks))
	for i := range chunks {
		entries[i] = index.Entry{Vector: vectors[i], Chunk: chunks[i]}
	}
	gen, err := index.Build(entries)
	if err != nil {
		fail(StateBuilding, err)
		return
	}

	m.setState(StatePublishing)
	if err := m.publish(gen); err != nil {
		fail(StatePublishing, err)
		return
	}
	out.GenerationID = gen.ID()
	out.Status = StatusSuccess
	if len(failed) > 0 || skipped > 0 {
		out.Status = StatusPartial
	}

	if err := m.persist(ctx, gen); err != nil {
		logger.Warn("persist index failed", zap.String("generation_id", gen.ID()), zap.Error(err))
		return
	}
	out.Persisted = m.store != nil
}

// fetch runs every source concurrently. A failing source is logged and
// skipped; documents keep source order.
func (m *Manager) fetch(ctx context.Context, logger *zap.Logger, sources []source.Source) ([]model.Document, []string) {
	results := make([][]model.Document, len(sources))
	errs := make([]error, len(sources))
	var g errgroup.Group
	g.SetLimit(m.cfg.FetchConcurrency)
	for i, src := range sources {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
			defer cancel()
			docs, err := src.Fetch(fctx)
			if err != nil && !errors.Is(err, appErr.ErrSourceFetch) {
				err = fmt.Errorf("%w: %s: %w", appErr.ErrSourceFetch, src.Name(), err)
			}
			results[i], errs[i] = docs, err
			return nil
		})
	}
	_ = g.Wait()

	var (
		docs   []model.Document
		failed []string
	)
	for i, src := range sources {
		if errs[i] != nil {
			logger.Warn("source fetch failed, skipped", zap.String("source", src.Name()), zap.Error(errs[i]))
			failed = append(failed, src.Name())
			continue
		}
		logger.Debug("source fetched", zap.String("source", src.Name()), zap.Int("documents", len(results[i])))
		docs = append(docs, results[i]...)
	}
	return docs, failed
}

func (m *Manager) chunk(logger *zap.Logger, docs []model.Document) ([]model.Chunk, int) {
	var (
		chunks  []model.Chunk
		skipped int
	)
	for i, doc := range docs {
		part, err := m.splitter.Chunk(doc, i)
		if err != nil {
			skipped++
			logger.Warn("document skipped", zap.String("source", doc.Source), zap.Error(err))
			continue
		}
		chunks = append(chunks, part...)
	}
	return chunks, skipped
}

// embed sends chunks in batches. Transient service errors are retried with
// capped exponential backoff; anything else aborts the cycle.
func (m *Manager) embed(ctx context.Context, logger *zap.Logger, chunks []model.Chunk, attempts *int) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += m.cfg.BatchSize {
		end := min(start+m.cfg.BatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		var batch [][]float32
		backoff := retry.WithMaxRetries(uint64(m.cfg.MaxAttempts-1),
			retry.WithCappedDuration(m.cfg.MaxBackoff, retry.NewExponential(m.cfg.Backoff)))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			*attempts++
			res, err := m.embedOnce(ctx, texts)
			if err != nil {
				if appErr.IsRetryable(err) {
					logger.Warn("embedding batch failed, will retry",
						zap.Int("batch_start", start), zap.Int("attempt", *attempts), zap.Error(err))
					return retry.RetryableError(err)
				}
				return err
			}
			batch = res
			return nil
		})
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (m *Manager) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	actx, cancel := context.WithTimeout(ctx, m.cfg.EmbedTimeout)
	defer cancel()
	res, err := m.embedder.Embed(actx, texts, ai.TaskRetrievalDocument)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, appErr.ErrEmbeddingService) {
			err = fmt.Errorf("%w: %w", appErr.ErrEmbeddingService, err)
		}
		return nil, err
	}
	if len(res) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", appErr.ErrEmbeddingResult, len(res), len(texts))
	}
	return res, nil
}

func (m *Manager) publish(gen *index.Generation) error {
	if gen == nil {
		return fmt.Errorf("%w: nil generation", appErr.ErrIndexPublish)
	}
	m.published.Swap(gen)
	return nil
}

func (m *Manager) persist(ctx context.Context, gen *index.Generation) error {
	if m.store == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := index.Encode(&buf, gen); err != nil {
		return err
	}
	pctx, cancel := context.WithTimeout(ctx, m.cfg.PersistTimeout)
	defer cancel()
	return m.store.Save(pctx, m.cfg.IndexKey, filestore.NewBytesReader(buf.Bytes()), int64(buf.Len()))
}

// Restore loads the persisted generation and publishes it unless a cycle has
// already published a newer one. A missing blob is not an error.
func (m *Manager) Restore(ctx context.Context) (*index.Generation, error) {
	if m.store == nil {
		return nil, nil
	}
	rc, err := m.store.Open(ctx, m.cfg.IndexKey)
	if err != nil {
		if appErr.IsNotFound(err) {
			logutil.GetLogger(ctx).Info("no persisted index found", zap.String("key", m.cfg.IndexKey))
			return nil, nil
		}
		return nil, err
	}
	defer rc.Close()
	gen, err := index.Decode(rc)
	if err != nil {
		return nil, err
	}
	if !m.published.PublishIfEmpty(gen) {
		return m.published.Current(), nil
	}
	logutil.GetLogger(ctx).Info("persisted index restored",
		zap.String("generation_id", gen.ID()),
		zap.Int("chunks", gen.Len()),
		zap.Time("built_at", gen.BuiltAt()))
	return gen, nil
}
