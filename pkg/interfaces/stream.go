package interfaces

import (
	"context"
	"time"

	"readalong/pkg/types"
)

// LogStore is the client surface of the external append-only log
// service: authenticated appends plus long-poll batch reads.
type LogStore interface {
	// Append serializes each event into a record body and appends
	// them to the named stream. The stream is created implicitly by
	// the log service on first use.
	Append(ctx context.Context, stream string, events []*types.Event) error

	// ReadBatch issues one long-lived read starting at minSeqNum with
	// a server-side wait hint. Frames arrive incrementally on the
	// returned stream until the server closes the response.
	ReadBatch(ctx context.Context, stream string, minSeqNum int64, wait time.Duration) (RecordStream, error)
}

// RecordStream yields decoded frames from one long-poll read. Next
// returns io.EOF when the server closes the response normally.
type RecordStream interface {
	Next() (*types.Frame, error)
	Close() error
}

// EventPublisher turns domain actions into log records and mirrors
// the resulting state into the session registry.
type EventPublisher interface {
	Publish(ctx context.Context, sessionID string, event *types.Event) error
}
