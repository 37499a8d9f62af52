package job

import (
	"context"

	"github.com/xxxsen/insightai/internal/lifecycle"
)

type Rebuilder interface {
	RunCycle(ctx context.Context) lifecycle.Outcome
}

type IndexRebuildJob struct {
	rebuilder Rebuilder
}

func NewIndexRebuildJob(rebuilder Rebuilder) *IndexRebuildJob {
	return &IndexRebuildJob{rebuilder: rebuilder}
}

func (j *IndexRebuildJob) Name() string {
	return "index_rebuild"
}

// Run triggers one cycle. A cycle rejected because another one is running
// is not an error for the scheduler.
func (j *IndexRebuildJob) Run(ctx context.Context) error {
	out := j.rebuilder.RunCycle(ctx)
	if out.Status == lifecycle.StatusFailed {
		return out.Err
	}
	return nil
}
