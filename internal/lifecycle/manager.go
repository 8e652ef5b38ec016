package lifecycle

import (
	"context"
	"log"
	"time"

	"readalong/pkg/interfaces"
	"readalong/pkg/types"
)

// Manager orchestrates session creation and teardown across the
// registry, the publisher, and the optional archive.
type Manager struct {
	registry  interfaces.SessionRegistry
	publisher interfaces.EventPublisher
	archive   interfaces.Archiver // may be nil
}

// NewManager creates a lifecycle manager. archive may be nil.
func NewManager(registry interfaces.SessionRegistry, publisher interfaces.EventPublisher, archive interfaces.Archiver) *Manager {
	return &Manager{
		registry:  registry,
		publisher: publisher,
		archive:   archive,
	}
}

// Create registers the session and records its start in the archive.
func (m *Manager) Create(ctx context.Context, sessionID, teacherID, storyID, mode string) *types.Session {
	session := m.registry.Create(sessionID, teacherID, storyID, mode)

	if m.archive != nil {
		if err := m.archive.SessionStarted(ctx, session); err != nil {
			log.Printf("Archive session start failed for %s: %v", sessionID, err)
		}
	}

	return session
}

// End publishes a final session_end record (best effort: an append
// failure must not block eviction) and then removes the session. Any
// still-attached relay receives the session_end event once its
// consumer catches up.
func (m *Manager) End(ctx context.Context, sessionID string) error {
	session, err := m.registry.Get(sessionID)
	if err != nil {
		return err
	}

	endEvent := &types.Event{
		Type:      types.EventTypeSessionEnd,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
	if err := m.publisher.Publish(ctx, sessionID, endEvent); err != nil {
		log.Printf("Best-effort session_end publish failed for %s: %v", sessionID, err)
	}

	if m.archive != nil {
		if err := m.archive.SessionEnded(ctx, sessionID, time.Now(), len(session.Roster)); err != nil {
			log.Printf("Archive session end failed for %s: %v", sessionID, err)
		}
	}

	return m.registry.Remove(sessionID)
}
