package lifecycle

import "time"

type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateChunking   State = "chunking"
	StateEmbedding  State = "embedding"
	StateBuilding   State = "building"
	StatePublishing State = "publishing"
	StateFailed     State = "failed"
)

type Status string

const (
	StatusSuccess  Status = "success"
	StatusPartial  Status = "partial"
	StatusNoop     Status = "noop"
	StatusFailed   Status = "failed"
	StatusRejected Status = "rejected"
)

// Outcome reports one rebuild cycle. Stage is set when Status is failed.
type Outcome struct {
	CycleID          string        `json:"cycle_id,omitempty"`
	Status           Status        `json:"status"`
	Stage            State         `json:"stage,omitempty"`
	Documents        int           `json:"documents"`
	Chunks           int           `json:"chunks"`
	FailedSources    []string      `json:"failed_sources,omitempty"`
	SkippedDocuments int           `json:"skipped_documents"`
	EmbedAttempts    int           `json:"embed_attempts"`
	GenerationID     string        `json:"generation_id,omitempty"`
	Persisted        bool          `json:"persisted"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"-"`
	DurationMillis   int64         `json:"duration_ms"`
	Error            string        `json:"error,omitempty"`
	Err              error         `json:"-"`
}

func (o Outcome) OK() bool {
	switch o.Status {
	case StatusSuccess, StatusPartial, StatusNoop:
		return true
	}
	return false
}
