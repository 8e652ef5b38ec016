package interfaces

import (
	"encoding/json"

	"readalong/pkg/types"
)

// SessionRegistry is the in-memory directory of active sessions. It
// owns all session state: metadata, roster, and the latest progress
// snapshot per student. No other component mutates a Session directly.
type SessionRegistry interface {
	// Create registers a session, overwriting any existing session
	// with the same ID (last-writer-wins).
	Create(sessionID, teacherID, storyID, mode string) *types.Session

	// Get retrieves a session by ID, or ErrSessionNotFound.
	Get(sessionID string) (*types.Session, error)

	// List returns all active sessions.
	List() []*types.Session

	// AddStudent adds a student to the roster, or returns the
	// existing ID when the name has already joined (idempotent).
	AddStudent(sessionID, studentName string) (studentID string, reconnected bool, err error)

	// Roster returns a point-in-time copy of the session roster.
	Roster(sessionID string) ([]*types.Student, error)

	// RecordProgress replaces a student's progress snapshot wholesale.
	RecordProgress(sessionID string, snapshot *types.ProgressSnapshot) error

	// Progress returns the latest snapshots keyed by student ID.
	Progress(sessionID string) (map[string]*types.ProgressSnapshot, error)

	// SetStory attaches a teacher story (and optional quiz) to the session.
	SetStory(sessionID string, story, quiz json.RawMessage) error

	// Story returns the attached story and quiz, or ErrNoStorySet.
	Story(sessionID string) (story, quiz json.RawMessage, err error)

	// Remove evicts a session and all derived state.
	Remove(sessionID string) error
}
