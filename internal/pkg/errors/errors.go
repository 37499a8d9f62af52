package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrTooMany      = errors.New("too many requests")
	ErrInternal     = errors.New("internal")

	ErrSourceFetch      = errors.New("source fetch failed")
	ErrChunking         = errors.New("chunking failed")
	ErrEmbeddingService = errors.New("embedding service error")
	ErrEmbeddingQuota   = errors.New("embedding quota error")
	ErrEmbeddingResult  = errors.New("malformed embedding result")
	ErrIndexPublish     = errors.New("index publish failed")
	ErrQuery            = errors.New("query failed")
	ErrNotReady         = errors.New("index not ready")
	ErrNoRelevant       = errors.New("no relevant content")
	ErrRebuildRunning   = errors.New("rebuild already running")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}

// IsRetryable reports whether err is a transient embedding failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrEmbeddingService) && !errors.Is(err, ErrEmbeddingQuota)
}
