package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/insightai/internal/index"
	"github.com/xxxsen/insightai/internal/model"
	appErr "github.com/xxxsen/insightai/internal/pkg/errors"
	"github.com/xxxsen/insightai/internal/retrieval"
)

type stubRetriever struct {
	res *retrieval.Result
	err error
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, k int) (*retrieval.Result, error) {
	return s.res, s.err
}

type stubComposer struct {
	calls int
	ctx   string
	err   error
}

func (s *stubComposer) Answer(ctx context.Context, contextText string, question string) (string, error) {
	s.calls++
	s.ctx = contextText
	if s.err != nil {
		return "", s.err
	}
	return "**Cats** are great.\n<script>alert(1)</script>", nil
}

func oneHit(genID string) *retrieval.Result {
	return &retrieval.Result{
		Hits:         []index.Hit{{Chunk: model.Chunk{Text: "Cats are great", Source: "a"}, Score: 0.9}},
		Context:      "Cats are great",
		Sources:      []string{"a"},
		GenerationID: genID,
	}
}

func TestRAGServiceAsk(t *testing.T) {
	composer := &stubComposer{}
	svc := NewRAGService(&stubRetriever{res: oneHit("g1")}, composer, RAGServiceConfig{})

	out, err := svc.Ask(context.Background(), " Are cats great? ", 4)
	require.NoError(t, err)
	require.Equal(t, "Cats are great", composer.ctx)
	require.Equal(t, "Are cats great?", out.Question)
	require.Equal(t, []string{"a"}, out.ChunksUsed)
	require.Equal(t, "g1", out.GenerationID)
	require.Contains(t, out.AnswerHTML, "<strong>Cats</strong>")
	require.False(t, strings.Contains(out.AnswerHTML, "<script>"))
	require.False(t, out.Cached)

	again, err := svc.Ask(context.Background(), "are cats great?", 4)
	require.NoError(t, err)
	require.True(t, again.Cached)
	require.Equal(t, 1, composer.calls)
}

func TestRAGServiceAsk_CachedResultIsIsolated(t *testing.T) {
	svc := NewRAGService(&stubRetriever{res: oneHit("g1")}, &stubComposer{}, RAGServiceConfig{})

	first, err := svc.Ask(context.Background(), "cats?", 4)
	require.NoError(t, err)
	first.ChunksUsed[0] = "changed"

	second, err := svc.Ask(context.Background(), "cats?", 4)
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, []string{"a"}, second.ChunksUsed)
	second.ChunksUsed[0] = "changed again"

	third, err := svc.Ask(context.Background(), "cats?", 4)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, third.ChunksUsed)
}

func TestRAGServiceAsk_CacheFollowsGeneration(t *testing.T) {
	composer := &stubComposer{}
	retriever := &stubRetriever{res: oneHit("g1")}
	svc := NewRAGService(retriever, composer, RAGServiceConfig{})
	_, err := svc.Ask(context.Background(), "q", 4)
	require.NoError(t, err)
	retriever.res = oneHit("g2")
	out, err := svc.Ask(context.Background(), "q", 4)
	require.NoError(t, err)
	require.False(t, out.Cached)
	require.Equal(t, 2, composer.calls)
}

func TestRAGServiceAsk_Signals(t *testing.T) {
	composer := &stubComposer{}
	svc := NewRAGService(&stubRetriever{err: appErr.ErrNotReady}, composer, RAGServiceConfig{})
	_, err := svc.Ask(context.Background(), "q", 4)
	require.ErrorIs(t, err, appErr.ErrNotReady)

	svc = NewRAGService(&stubRetriever{res: &retrieval.Result{GenerationID: "g"}}, composer, RAGServiceConfig{})
	_, err = svc.Ask(context.Background(), "q", 4)
	require.ErrorIs(t, err, appErr.ErrNoRelevant)

	_, err = svc.Ask(context.Background(), "   ", 4)
	require.ErrorIs(t, err, appErr.ErrInvalid)
	require.Zero(t, composer.calls)
}

func TestRAGServiceAsk_ComposerError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewRAGService(&stubRetriever{res: oneHit("g1")}, &stubComposer{err: boom}, RAGServiceConfig{})
	_, err := svc.Ask(context.Background(), "q", 4)
	require.ErrorIs(t, err, boom)
}
