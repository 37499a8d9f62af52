package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/insightai/internal/ai"
	"github.com/xxxsen/insightai/internal/model"
)

// Store is the persistent side of the embedding cache.
type Store interface {
	GetMany(ctx context.Context, modelName, taskType string, contentHashes []string) (map[string][]float32, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
}

func WrapDBCacheToEmbedder(e ai.IEmbedder, store Store) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store}
}

type dbEmbedder struct {
	next  ai.IEmbedder
	store Store
}

func (d *dbEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	modelName := normalizeModel(d.next.ModelName())
	hashes := make([]string, len(texts))
	for i, text := range texts {
		hashes[i] = contentHash(text)
	}
	cached, err := d.store.GetMany(ctx, modelName, taskType, hashes)
	if err != nil {
		logutil.GetLogger(ctx).Warn("embedding cache lookup failed", zap.Error(err))
		cached = nil
	}
	out := make([][]float32, len(texts))
	missing := newMissSet()
	for i, hash := range hashes {
		if values, ok := cached[hash]; ok {
			out[i] = values
			continue
		}
		missing.add(hash, texts[i], i)
	}
	if hits := len(texts) - missing.count(); hits > 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (db)",
			zap.String("task_type", taskType), zap.Int("hits", hits), zap.Int("total", len(texts)))
	}
	if missing.empty() {
		return out, nil
	}
	res, err := d.next.Embed(ctx, missing.texts, taskType)
	if err != nil {
		return nil, err
	}
	if len(res) != len(missing.texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(res), len(missing.texts))
	}
	now := time.Now().Unix()
	for j, values := range res {
		missing.fill(out, j, values)
		if err := d.store.Save(ctx, &model.EmbeddingCache{
			ModelName:   modelName,
			TaskType:    taskType,
			ContentHash: missing.keys[j],
			Embedding:   values,
			Ctime:       now,
		}); err != nil {
			logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
		}
	}
	return out, nil
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}

// missSet collects distinct uncached texts and the output slots each fills.
type missSet struct {
	texts []string
	keys  []string
	slots [][]int
	byKey map[string]int
}

func newMissSet() *missSet {
	return &missSet{byKey: make(map[string]int)}
}

func (m *missSet) add(key, text string, slot int) {
	if j, ok := m.byKey[key]; ok {
		m.slots[j] = append(m.slots[j], slot)
		return
	}
	m.byKey[key] = len(m.texts)
	m.texts = append(m.texts, text)
	m.keys = append(m.keys, key)
	m.slots = append(m.slots, []int{slot})
}

func (m *missSet) fill(out [][]float32, j int, values []float32) {
	for n, slot := range m.slots[j] {
		if n == 0 {
			out[slot] = values
			continue
		}
		out[slot] = cloneEmbedding(values)
	}
}

func (m *missSet) count() int {
	total := 0
	for _, slots := range m.slots {
		total += len(slots)
	}
	return total
}

func (m *missSet) empty() bool {
	return len(m.texts) == 0
}

func normalizeModel(modelName string) string {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		return "unknown"
	}
	return modelName
}

func contentHash(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}

func buildCacheKey(modelName, taskType, text string) string {
	return "embed:" + normalizeModel(modelName) + ":" + taskType + ":" + contentHash(text)
}
