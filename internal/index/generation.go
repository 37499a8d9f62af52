package index

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/xxxsen/insightai/internal/model"
)

// Entry pairs one chunk with its embedding.
type Entry struct {
	Vector []float32   `json:"vector"`
	Chunk  model.Chunk `json:"chunk"`
}

// Generation is one immutable build of the index. Nothing mutates a
// Generation after Build returns it.
type Generation struct {
	id        string
	builtAt   time.Time
	dimension int
	entries   []Entry
	norms     []float64
}

type Hit struct {
	Chunk model.Chunk `json:"chunk"`
	Score float64     `json:"score"`
}

// Build copies entries into a new generation. All vectors must share one
// dimension.
func Build(entries []Entry) (*Generation, error) {
	return build(uuid.NewString(), time.Now(), entries)
}

func build(id string, builtAt time.Time, entries []Entry) (*Generation, error) {
	g := &Generation{
		id:      id,
		builtAt: builtAt,
		entries: make([]Entry, len(entries)),
		norms:   make([]float64, len(entries)),
	}
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return nil, fmt.Errorf("entry %d has an empty vector", i)
		}
		if g.dimension == 0 {
			g.dimension = len(e.Vector)
		}
		if len(e.Vector) != g.dimension {
			return nil, fmt.Errorf("entry %d dimension %d, want %d", i, len(e.Vector), g.dimension)
		}
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		g.entries[i] = Entry{Vector: vec, Chunk: e.Chunk}
		g.norms[i] = norm(vec)
	}
	return g, nil
}

func (g *Generation) ID() string {
	return g.id
}

func (g *Generation) BuiltAt() time.Time {
	return g.builtAt
}

func (g *Generation) Dimension() int {
	return g.dimension
}

func (g *Generation) Len() int {
	return len(g.entries)
}

// Search ranks every entry by cosine similarity to query and returns the
// best k. Equal scores fall back to sequence index, then document order.
func (g *Generation) Search(query []float32, k int) ([]Hit, error) {
	if g == nil || len(g.entries) == 0 || k <= 0 {
		return []Hit{}, nil
	}
	if len(query) != g.dimension {
		return nil, fmt.Errorf("query dimension %d, index dimension %d", len(query), g.dimension)
	}
	qnorm := norm(query)
	hits := make([]Hit, len(g.entries))
	for i, e := range g.entries {
		hits[i] = Hit{Chunk: e.Chunk, Score: cosine(query, qnorm, e.Vector, g.norms[i])}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.SequenceIndex != b.Chunk.SequenceIndex {
			return a.Chunk.SequenceIndex < b.Chunk.SequenceIndex
		}
		return a.Chunk.DocumentOrder < b.Chunk.DocumentOrder
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Search is the functional form of Generation.Search.
func Search(g *Generation, query []float32, k int) ([]Hit, error) {
	return g.Search(query, k)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, na float64, b []float32, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}
