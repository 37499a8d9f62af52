package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/insightai/internal/lifecycle"
)

type stubRebuilder struct {
	out lifecycle.Outcome
}

func (s *stubRebuilder) RunCycle(ctx context.Context) lifecycle.Outcome {
	return s.out
}

func TestIndexRebuildJob(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		out  lifecycle.Outcome
		want error
	}{
		{out: lifecycle.Outcome{Status: lifecycle.StatusSuccess}},
		{out: lifecycle.Outcome{Status: lifecycle.StatusNoop}},
		{out: lifecycle.Outcome{Status: lifecycle.StatusRejected, Err: boom}},
		{out: lifecycle.Outcome{Status: lifecycle.StatusFailed, Err: boom}, want: boom},
	}
	for _, tc := range cases {
		job := NewIndexRebuildJob(&stubRebuilder{out: tc.out})
		require.Equal(t, "index_rebuild", job.Name())
		err := job.Run(context.Background())
		if tc.want == nil {
			require.NoError(t, err, tc.out.Status)
			continue
		}
		require.ErrorIs(t, err, tc.want)
	}
}

type stubCleaner struct {
	cutoff int64
}

func (s *stubCleaner) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	s.cutoff = cutoff
	return 3, nil
}

func TestEmbeddingCacheCleanupJob(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	cleaner := &stubCleaner{}
	job := NewEmbeddingCacheCleanupJob(cleaner, 0)
	job.now = func() time.Time { return now }
	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, now.AddDate(0, 0, -30).Unix(), cleaner.cutoff)

	require.NoError(t, NewEmbeddingCacheCleanupJob(nil, 1).Run(context.Background()))
}
