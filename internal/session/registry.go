package session

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"readalong/pkg/interfaces"
	"readalong/pkg/types"
)

// Registry is the in-memory directory of active sessions. It owns all
// session state; mutations happen only through its methods, guarded by
// a single mutex (session counts are small, per-session locks are not
// worth it).
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
}

// sessionState bundles a session with its latest per-student progress
// snapshots.
type sessionState struct {
	session  *types.Session
	progress map[string]*types.ProgressSnapshot
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*sessionState),
	}
}

// Create registers a session. An existing session with the same ID is
// overwritten (last-writer-wins, no conflict error). The backing
// stream name is derived deterministically; the remote log creates the
// stream implicitly on first append or read.
func (r *Registry) Create(sessionID, teacherID, storyID, mode string) *types.Session {
	session := &types.Session{
		ID:         sessionID,
		TeacherID:  teacherID,
		StoryID:    storyID,
		Mode:       mode,
		CreatedAt:  time.Now(),
		Roster:     make([]*types.Student, 0),
		StreamName: StreamName(sessionID),
	}

	state := &sessionState{
		session:  session,
		progress: make(map[string]*types.ProgressSnapshot),
	}

	r.mu.Lock()
	r.sessions[sessionID] = state
	snapshot := state.snapshot()
	r.mu.Unlock()

	log.Printf("Created session: id=%s teacher=%s mode=%s", sessionID, teacherID, mode)
	return snapshot
}

// StreamName derives the log stream backing a session.
func StreamName(sessionID string) string {
	return "session-" + sessionID
}

// snapshot returns a copy of the session safe to read outside the
// lock. The Roster slice is copied because AddStudent appends to the
// live one; the Student entries themselves are immutable.
func (s *sessionState) snapshot() *types.Session {
	session := *s.session
	session.Roster = make([]*types.Student, len(s.session.Roster))
	copy(session.Roster, s.session.Roster)
	return &session
}

// Get retrieves a point-in-time copy of a session by ID.
func (r *Registry) Get(sessionID string) (*types.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, exists := r.sessions[sessionID]
	if !exists {
		return nil, interfaces.ErrSessionNotFound
	}
	return state.snapshot(), nil
}

// List returns point-in-time copies of all active sessions.
func (r *Registry) List() []*types.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*types.Session, 0, len(r.sessions))
	for _, state := range r.sessions {
		sessions = append(sessions, state.snapshot())
	}
	return sessions
}

// AddStudent adds studentName to the roster. The name is the natural
// de-duplication key: re-joining with a name already on the roster
// returns the existing ID with reconnected=true and performs no
// mutation. New students get positional IDs ("student1", ...).
func (r *Registry) AddStudent(sessionID, studentName string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exists := r.sessions[sessionID]
	if !exists {
		return "", false, interfaces.ErrSessionNotFound
	}

	for _, student := range state.session.Roster {
		if student.Name == studentName {
			return student.ID, true, nil
		}
	}

	student := &types.Student{
		ID:       fmt.Sprintf("student%d", len(state.session.Roster)+1),
		Name:     studentName,
		JoinedAt: time.Now(),
	}
	state.session.Roster = append(state.session.Roster, student)

	log.Printf("Student joined: session=%s id=%s name=%s", sessionID, student.ID, studentName)
	return student.ID, false, nil
}

// Roster returns a point-in-time copy of the roster slice. The
// Student entries themselves are immutable after creation.
func (r *Registry) Roster(sessionID string) ([]*types.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, exists := r.sessions[sessionID]
	if !exists {
		return nil, interfaces.ErrSessionNotFound
	}

	roster := make([]*types.Student, len(state.session.Roster))
	copy(roster, state.session.Roster)
	return roster, nil
}

// RecordProgress replaces the student's snapshot wholesale. The first
// update for a student creates the entry; the student does not need a
// prior snapshot, only the session must exist.
func (r *Registry) RecordProgress(sessionID string, snapshot *types.ProgressSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exists := r.sessions[sessionID]
	if !exists {
		return interfaces.ErrSessionNotFound
	}

	state.progress[snapshot.StudentID] = snapshot
	return nil
}

// Progress returns a copy of the latest snapshots keyed by student ID.
func (r *Registry) Progress(sessionID string) (map[string]*types.ProgressSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, exists := r.sessions[sessionID]
	if !exists {
		return nil, interfaces.ErrSessionNotFound
	}

	progress := make(map[string]*types.ProgressSnapshot, len(state.progress))
	for id, snapshot := range state.progress {
		progress[id] = snapshot
	}
	return progress, nil
}

// SetStory attaches the teacher story and optional quiz.
func (r *Registry) SetStory(sessionID string, story, quiz json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exists := r.sessions[sessionID]
	if !exists {
		return interfaces.ErrSessionNotFound
	}

	state.session.Story = story
	state.session.Quiz = quiz
	return nil
}

// Story returns the attached story and quiz.
func (r *Registry) Story(sessionID string) (json.RawMessage, json.RawMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, exists := r.sessions[sessionID]
	if !exists {
		return nil, nil, interfaces.ErrSessionNotFound
	}
	if state.session.Story == nil {
		return nil, nil, interfaces.ErrNoStorySet
	}
	return state.session.Story, state.session.Quiz, nil
}

// Remove evicts the session and all derived state.
func (r *Registry) Remove(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sessionID]; !exists {
		return interfaces.ErrSessionNotFound
	}
	delete(r.sessions, sessionID)

	log.Printf("Removed session: id=%s", sessionID)
	return nil
}
