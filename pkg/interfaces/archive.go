package interfaces

import (
	"context"
	"time"

	"readalong/pkg/types"
)

// Archiver persists a write-behind audit trail of published events and
// session lifecycle summaries. It is never read back to restore live
// session state; sessions do not survive a process restart.
type Archiver interface {
	// SessionStarted records a session creation summary.
	SessionStarted(ctx context.Context, session *types.Session) error

	// SessionEnded stamps the end time on a session summary.
	SessionEnded(ctx context.Context, sessionID string, endedAt time.Time, studentCount int) error

	// RecordEvent appends one published event to the audit trail.
	RecordEvent(ctx context.Context, event *types.Event) error

	// History returns archived events for a session ordered by
	// insertion.
	History(ctx context.Context, sessionID string) ([]*types.Event, error)

	// HealthCheck verifies the archive is reachable and writable.
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and closes the archive.
	Close() error
}
