package publish

import (
	"context"
	"fmt"
	"log"
	"time"

	"readalong/pkg/interfaces"
	"readalong/pkg/types"
)

// Publisher turns domain actions into log records. Every publish is a
// dual write: the event is appended to the remote log, then mirrored
// into the registry's progress state. The mirror keeps the registry at
// least as fresh as the last local publish, which is what lets a late
// subscriber replay current state without waiting for the log.
type Publisher struct {
	store    interfaces.LogStore
	registry interfaces.SessionRegistry
	archive  interfaces.Archiver // optional write-behind audit trail
}

// NewPublisher creates a publisher. archive may be nil.
func NewPublisher(store interfaces.LogStore, registry interfaces.SessionRegistry, archive interfaces.Archiver) *Publisher {
	return &Publisher{
		store:    store,
		registry: registry,
		archive:  archive,
	}
}

// Publish fills envelope defaults, appends the event to the session's
// stream, and on success mirrors it locally. Append failures are
// returned to the caller; the registry is left untouched in that case.
func (p *Publisher) Publish(ctx context.Context, sessionID string, event *types.Event) error {
	session, err := p.registry.Get(sessionID)
	if err != nil {
		return err
	}

	event.SessionID = sessionID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Status == "" {
		event.Status = types.StatusIdle
	}

	if err := p.store.Append(ctx, session.StreamName, []*types.Event{event}); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	p.mirror(sessionID, event)

	if p.archive != nil {
		if err := p.archive.RecordEvent(ctx, event); err != nil {
			log.Printf("Archive write failed for session %s: %v", sessionID, err)
		}
	}

	return nil
}

// mirror reflects the appended event into the registry's snapshot
// state. Joins seed an initial snapshot; progress updates replace it.
// A session evicted between append and mirror is not an error.
func (p *Publisher) mirror(sessionID string, event *types.Event) {
	switch event.Type {
	case types.EventTypeStudentJoin, types.EventTypeProgressUpdate:
		snapshot := &types.ProgressSnapshot{
			StudentID:        event.StudentID,
			StudentName:      event.StudentName,
			Progress:         event.Progress,
			CurrentParagraph: event.CurrentParagraph,
			Status:           event.Status,
			LastUpdate:       event.Timestamp,
		}
		if err := p.registry.RecordProgress(sessionID, snapshot); err != nil {
			log.Printf("Mirror skipped for session %s: %v", sessionID, err)
		}
	}
}
