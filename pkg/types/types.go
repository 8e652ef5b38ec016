package types

import (
	"encoding/json"
	"time"
)

// Event type constants used on the wire and in the log stream.
const (
	EventTypeConnected         = "connected"
	EventTypeStudentJoin       = "student_join"
	EventTypeProgressUpdate    = "progress_update"
	EventTypeTeacherStoryReady = "teacher_story_ready"
	EventTypeSessionEnd        = "session_end"
)

// Student status constants derived from reading progress.
const (
	StatusIdle       = "idle"
	StatusReading    = "reading"
	StatusCompleted  = "completed"
	StatusStoryReady = "story_ready"
)

// Session mode constants.
const (
	ModeTeacherStory = "teacher_story"
	ModeFreeTime     = "free_time"
)

// Session represents an active classroom reading session.
// Owned exclusively by the session registry; roster order is
// append-only and students are never removed individually.
type Session struct {
	ID         string          `json:"sessionId"`
	TeacherID  string          `json:"teacherId"`
	StoryID    string          `json:"storyId,omitempty"`
	Mode       string          `json:"mode"`
	CreatedAt  time.Time       `json:"createdAt"`
	Roster     []*Student      `json:"roster"`
	Story      json.RawMessage `json:"story,omitempty"`
	Quiz       json.RawMessage `json:"quiz,omitempty"`
	StreamName string          `json:"-"`
}

// Student is one roster entry. IDs are positional ("student1",
// "student2", ...) and the name is the de-duplication key.
type Student struct {
	ID       string    `json:"studentId"`
	Name     string    `json:"studentName"`
	JoinedAt time.Time `json:"joinedAt"`
}

// ProgressSnapshot is the latest known reading state for one student.
// It is replaced wholesale on every update, never merged.
type ProgressSnapshot struct {
	StudentID        string    `json:"studentId"`
	StudentName      string    `json:"studentName"`
	Progress         int       `json:"progress"`
	CurrentParagraph int       `json:"currentParagraph"`
	Status           string    `json:"status"`
	LastUpdate       time.Time `json:"lastUpdate"`
}

// Event is the decoded body of a log record and the unit delivered to
// subscribers.
type Event struct {
	Type             string    `json:"type"`
	SessionID        string    `json:"sessionId"`
	StudentID        string    `json:"studentId,omitempty"`
	StudentName      string    `json:"studentName,omitempty"`
	Progress         int       `json:"progress"`
	CurrentParagraph int       `json:"currentParagraph"`
	Status           string    `json:"status,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	StoryTitle       string    `json:"storyTitle,omitempty"`
}

// LogRecord is one appended record as returned by the log service.
// Body is the JSON-encoded Event; SeqNum is assigned by the log and
// strictly increasing within a stream.
type LogRecord struct {
	Body   string `json:"body"`
	SeqNum int64  `json:"seqNum"`
}

// Frame type constants for the long-poll read stream.
const (
	FrameBatch = "batch"
	FramePing  = "ping"
	FrameError = "error"
)

// Frame is one decoded unit of the long-poll read stream.
type Frame struct {
	Type    string
	Records []LogRecord // set for batch frames
	Message string      // set for error frames
}
