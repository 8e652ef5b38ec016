package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	// SQLite driver, referenced only in the connection string
	_ "github.com/mattn/go-sqlite3"

	"readalong/pkg/types"
)

// Store is the SQLite-backed audit archive. All writes funnel through
// a single writer goroutine; SQLite handles concurrent reads fine but
// contended writes poorly.
type Store struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

// writeOperation represents one queued database write
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// Open opens (or creates) the archive database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply archive schema: %w", err)
	}

	store := &Store{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	store.wg.Add(1)
	go store.writeLoop()

	return store, nil
}

// writeLoop processes all write operations in a single goroutine.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			op.result <- op.operation(s.db)
		case <-s.shutdown:
			log.Println("Archive write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (s *Store) executeWrite(operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("archive is closed")
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(10 * time.Second):
		return fmt.Errorf("archive write timeout")
	case <-s.shutdown:
		return fmt.Errorf("archive is shutting down")
	}
}

// SessionStarted records a session summary. Re-creating a session with
// the same ID replaces the summary (matching the registry's
// last-writer-wins semantics).
func (s *Store) SessionStarted(ctx context.Context, session *types.Session) error {
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT OR REPLACE INTO sessions (session_id, teacher_id, story_id, mode, created_at, student_count)
			 VALUES (?, ?, ?, ?, ?, 0)`,
			session.ID, session.TeacherID, session.StoryID, session.Mode, session.CreatedAt)
		return err
	})
}

// SessionEnded stamps the end time and final roster size.
func (s *Store) SessionEnded(ctx context.Context, sessionID string, endedAt time.Time, studentCount int) error {
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`UPDATE sessions SET ended_at = ?, student_count = ? WHERE session_id = ?`,
			endedAt, studentCount, sessionID)
		return err
	})
}

// RecordEvent appends one published event to the audit trail.
func (s *Store) RecordEvent(ctx context.Context, event *types.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO events (session_id, event_type, student_id, body, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			event.SessionID, event.Type, event.StudentID, string(body), event.Timestamp)
		return err
	})
}

// History returns archived events for a session in insertion order.
func (s *Store) History(ctx context.Context, sessionID string) ([]*types.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM events WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query event history: %w", err)
	}
	defer rows.Close()

	var events []*types.Event
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		var event types.Event
		if err := json.Unmarshal([]byte(body), &event); err != nil {
			log.Printf("Skipping malformed archived event for session %s: %v", sessionID, err)
			continue
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}

// HealthCheck verifies the archive is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops the writer and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	return s.db.Close()
}
