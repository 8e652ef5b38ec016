package archive

// Audit schema. Session rows are summaries stamped at start/end;
// event rows are the append-only trail in publish order. Nothing here
// is read back to restore live state.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id    TEXT PRIMARY KEY,
	teacher_id    TEXT NOT NULL,
	story_id      TEXT,
	mode          TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	ended_at      TIMESTAMP,
	student_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	student_id TEXT,
	body       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, id);
`
