package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"readalong/internal/lifecycle"
	"readalong/internal/logstream"
	"readalong/internal/relay"
	"readalong/pkg/interfaces"
	"readalong/pkg/types"
)

// Relay interface to avoid tight coupling to the relay implementation
type Relay interface {
	Attach(ctx context.Context, sessionID string, sink relay.Sink) (*relay.Subscription, error)
}

// Server is the HTTP layer: JSON handling and status-code mapping
// only, no session or streaming business logic.
type Server struct {
	registry  interfaces.SessionRegistry
	publisher interfaces.EventPublisher
	lifecycle *lifecycle.Manager
	relay     Relay
	archive   interfaces.Archiver // may be nil
	router    *http.ServeMux
}

// NewServer wires the handlers. archive may be nil; the history
// endpoint then reports the archive as disabled.
func NewServer(registry interfaces.SessionRegistry, publisher interfaces.EventPublisher, lc *lifecycle.Manager, rl Relay, archive interfaces.Archiver) *Server {
	s := &Server{
		registry:  registry,
		publisher: publisher,
		lifecycle: lc,
		relay:     rl,
		archive:   archive,
		router:    http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessions))))
	s.router.Handle("/sessions/", s.corsMiddleware(http.HandlerFunc(s.handleSessionPath)))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleSessions serves the collection endpoints (POST /sessions,
// GET /sessions).
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createSession(w, r)
	case http.MethodGet:
		s.listSessions(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessionPath dispatches everything under /sessions/. Fixed
// action verbs (join, progress, end, story) come first; anything else
// is a session ID with an optional sub-resource.
func (s *Server) handleSessionPath(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	segments := strings.Split(strings.Trim(path, "/"), "/")

	if len(segments) == 1 {
		switch segments[0] {
		case "":
			s.sendError(w, "Session ID required", http.StatusBadRequest)
			return
		case "join":
			s.withJSON(w, r, http.MethodPost, s.joinSession)
			return
		case "progress":
			s.withJSON(w, r, http.MethodPost, s.recordProgress)
			return
		case "end":
			s.withJSON(w, r, http.MethodPost, s.endSession)
			return
		case "story":
			s.withJSON(w, r, http.MethodPost, s.setStory)
			return
		}
	}

	sessionID := segments[0]
	sub := ""
	if len(segments) > 1 {
		sub = segments[1]
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		s.jsonHeader(w)
		s.getSession(w, r, sessionID)
	case sub == "subscribe" && r.Method == http.MethodGet:
		s.subscribeSession(w, r, sessionID)
	case sub == "ws" && r.Method == http.MethodGet:
		s.subscribeWebSocket(w, r, sessionID)
	case sub == "story" && r.Method == http.MethodGet:
		s.jsonHeader(w)
		s.getStory(w, r, sessionID)
	case sub == "history" && r.Method == http.MethodGet:
		s.jsonHeader(w)
		s.getHistory(w, r, sessionID)
	default:
		s.jsonHeader(w)
		s.sendError(w, "Not found", http.StatusNotFound)
	}
}

// withJSON applies the JSON content type and a method check before
// invoking the handler.
func (s *Server) withJSON(w http.ResponseWriter, r *http.Request, method string, handler func(http.ResponseWriter, *http.Request)) {
	s.jsonHeader(w)
	if r.Method != method {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	handler(w, r)
}

// Request/Response types for JSON serialization
type createSessionRequest struct {
	SessionID string `json:"sessionId"`
	TeacherID string `json:"teacherId"`
	StoryID   string `json:"storyId"`
	Mode      string `json:"mode"`
}

type createSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	Mode      string `json:"mode"`
}

type sessionSummary struct {
	SessionID    string    `json:"sessionId"`
	TeacherID    string    `json:"teacherId"`
	StoryID      string    `json:"storyId,omitempty"`
	Mode         string    `json:"mode"`
	StudentCount int       `json:"studentCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

type listSessionsResponse struct {
	Success  bool             `json:"success"`
	Sessions []sessionSummary `json:"sessions"`
}

type joinSessionRequest struct {
	SessionID   string `json:"sessionId"`
	StudentName string `json:"studentName"`
}

type joinSessionResponse struct {
	Success     bool   `json:"success"`
	SessionID   string `json:"sessionId"`
	StudentID   string `json:"studentId"`
	Mode        string `json:"mode"`
	Reconnected bool   `json:"reconnected,omitempty"`
}

type progressRequest struct {
	SessionID        string `json:"sessionId"`
	StudentID        string `json:"studentId"`
	CurrentParagraph int    `json:"currentParagraph"`
	TotalParagraphs  int    `json:"totalParagraphs"`
	Timestamp        int64  `json:"timestamp"` // unix milliseconds, optional
}

type endSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type setStoryRequest struct {
	SessionID string          `json:"sessionId"`
	Story     json.RawMessage `json:"story"`
	Quiz      json.RawMessage `json:"quiz"`
}

type storyResponse struct {
	Success bool            `json:"success"`
	Story   json.RawMessage `json:"story"`
	Quiz    json.RawMessage `json:"quiz,omitempty"`
}

type sessionDetailResponse struct {
	Success  bool                      `json:"success"`
	Session  *types.Session            `json:"session"`
	Students []*types.ProgressSnapshot `json:"students"`
}

type historyResponse struct {
	Success bool           `json:"success"`
	Events  []*types.Event `json:"events"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// createSession registers a session, generating an ID when the caller
// does not supply one. Re-using an ID overwrites the previous session.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.TeacherID == "" {
		s.sendError(w, "teacherId is required", http.StatusBadRequest)
		return
	}
	if req.Mode == "" {
		req.Mode = types.ModeFreeTime
	}
	if !types.IsValidMode(req.Mode) {
		s.sendError(w, "Invalid mode", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	session := s.lifecycle.Create(r.Context(), req.SessionID, req.TeacherID, req.StoryID, req.Mode)

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(createSessionResponse{
		Success:   true,
		SessionID: session.ID,
		Mode:      session.Mode,
	})
}

// listSessions returns summaries of all active sessions.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.List()

	summaries := make([]sessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, sessionSummary{
			SessionID:    session.ID,
			TeacherID:    session.TeacherID,
			StoryID:      session.StoryID,
			Mode:         session.Mode,
			StudentCount: len(session.Roster),
			CreatedAt:    session.CreatedAt,
		})
	}

	json.NewEncoder(w).Encode(listSessionsResponse{Success: true, Sessions: summaries})
}

// joinSession adds a student to the roster and publishes the join.
// Re-joining with a known name reconnects without a new roster entry
// or log append.
func (s *Server) joinSession(w http.ResponseWriter, r *http.Request) {
	var req joinSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		s.sendError(w, "sessionId is required", http.StatusBadRequest)
		return
	}
	if req.StudentName == "" {
		// Anonymous joins still need a distinct de-duplication key.
		req.StudentName = "Reader-" + uuid.New().String()[:8]
	}

	session, err := s.registry.Get(req.SessionID)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	studentID, reconnected, err := s.registry.AddStudent(req.SessionID, req.StudentName)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	if !reconnected {
		event := &types.Event{
			Type:        types.EventTypeStudentJoin,
			StudentID:   studentID,
			StudentName: req.StudentName,
			Status:      types.StatusIdle,
		}
		if err := s.publisher.Publish(r.Context(), req.SessionID, event); err != nil {
			log.Printf("Join publish failed: session=%s student=%s err=%v", req.SessionID, studentID, err)
			s.sendDomainError(w, err)
			return
		}
	}

	json.NewEncoder(w).Encode(joinSessionResponse{
		Success:     true,
		SessionID:   req.SessionID,
		StudentID:   studentID,
		Mode:        session.Mode,
		Reconnected: reconnected,
	})
}

// recordProgress derives the progress percentage and status from the
// paragraph position and publishes the update.
func (s *Server) recordProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.StudentID == "" {
		s.sendError(w, "sessionId and studentId are required", http.StatusBadRequest)
		return
	}
	if req.CurrentParagraph < 0 || req.TotalParagraphs < 0 {
		s.sendError(w, "paragraph counts cannot be negative", http.StatusBadRequest)
		return
	}

	roster, err := s.registry.Roster(req.SessionID)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	studentName := ""
	for _, student := range roster {
		if student.ID == req.StudentID {
			studentName = student.Name
			break
		}
	}
	if studentName == "" {
		s.sendDomainError(w, interfaces.ErrStudentNotFound)
		return
	}

	progress, status := types.DeriveProgress(req.CurrentParagraph, req.TotalParagraphs)

	event := &types.Event{
		Type:             types.EventTypeProgressUpdate,
		StudentID:        req.StudentID,
		StudentName:      studentName,
		Progress:         progress,
		CurrentParagraph: req.CurrentParagraph,
		Status:           status,
	}
	if req.Timestamp > 0 {
		event.Timestamp = time.UnixMilli(req.Timestamp)
	}

	if err := s.publisher.Publish(r.Context(), req.SessionID, event); err != nil {
		log.Printf("Progress publish failed: session=%s student=%s err=%v", req.SessionID, req.StudentID, err)
		s.sendDomainError(w, err)
		return
	}

	json.NewEncoder(w).Encode(successResponse{Success: true})
}

// endSession publishes the final record and evicts the session.
func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		s.sendError(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	if err := s.lifecycle.End(r.Context(), req.SessionID); err != nil {
		s.sendDomainError(w, err)
		return
	}

	json.NewEncoder(w).Encode(successResponse{Success: true})
}

// setStory attaches the teacher story and announces it to subscribers.
func (s *Server) setStory(w http.ResponseWriter, r *http.Request) {
	var req setStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || len(req.Story) == 0 {
		s.sendError(w, "sessionId and story are required", http.StatusBadRequest)
		return
	}

	if err := s.registry.SetStory(req.SessionID, req.Story, req.Quiz); err != nil {
		s.sendDomainError(w, err)
		return
	}

	var storyMeta struct {
		Title string `json:"title"`
	}
	// Story bodies are opaque pass-through; only the title is lifted
	// into the announcement event.
	_ = json.Unmarshal(req.Story, &storyMeta)

	event := &types.Event{
		Type:       types.EventTypeTeacherStoryReady,
		StoryTitle: storyMeta.Title,
	}
	if err := s.publisher.Publish(r.Context(), req.SessionID, event); err != nil {
		log.Printf("Story publish failed: session=%s err=%v", req.SessionID, err)
		s.sendDomainError(w, err)
		return
	}

	json.NewEncoder(w).Encode(successResponse{Success: true})
}

// getStory returns the attached story and quiz.
func (s *Server) getStory(w http.ResponseWriter, r *http.Request, sessionID string) {
	story, quiz, err := s.registry.Story(sessionID)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	json.NewEncoder(w).Encode(storyResponse{Success: true, Story: story, Quiz: quiz})
}

// getSession returns session detail with the latest snapshot per
// roster entry. Students without a snapshot yet appear as idle.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	roster, err := s.registry.Roster(sessionID)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	progress, err := s.registry.Progress(sessionID)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	students := make([]*types.ProgressSnapshot, 0, len(roster))
	for _, student := range roster {
		if snapshot, ok := progress[student.ID]; ok {
			students = append(students, snapshot)
			continue
		}
		students = append(students, &types.ProgressSnapshot{
			StudentID:   student.ID,
			StudentName: student.Name,
			Status:      types.StatusIdle,
			LastUpdate:  student.JoinedAt,
		})
	}

	json.NewEncoder(w).Encode(sessionDetailResponse{Success: true, Session: session, Students: students})
}

// getHistory returns the archived event trail for a session.
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request, sessionID string) {
	if s.archive == nil {
		s.sendError(w, "Event archive is disabled", http.StatusNotFound)
		return
	}

	events, err := s.archive.History(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, "Failed to read event history", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*types.Event{}
	}

	json.NewEncoder(w).Encode(historyResponse{Success: true, Events: events})
}

// healthCheck reports component status.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	archiveStatus := "disabled"
	if s.archive != nil {
		archiveStatus = "healthy"
		if err := s.archive.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			archiveStatus = err.Error()
		}
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now(),
		"archive":   archiveStatus,
		"sessions":  len(s.registry.List()),
	}

	if status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}

// sendDomainError maps component errors onto HTTP status codes:
// NotFound-family errors are 404, auth failures are 503 (the server
// cannot talk to the log), anything upstream-transient is 502.
func (s *Server) sendDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interfaces.ErrSessionNotFound):
		s.sendError(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, interfaces.ErrStudentNotFound):
		s.sendError(w, "Student not found", http.StatusNotFound)
	case errors.Is(err, interfaces.ErrNoStorySet):
		s.sendError(w, "No story set for session", http.StatusNotFound)
	case errors.Is(err, logstream.ErrAuthFailed):
		s.sendError(w, "Log service credentials rejected", http.StatusServiceUnavailable)
	default:
		s.sendError(w, "Upstream log service error", http.StatusBadGateway)
	}
}

// sendError writes the error envelope.
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorResponse{Success: false, Error: message})
}

func (s *Server) jsonHeader(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}

// corsMiddleware enables web client access.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// jsonMiddleware sets the JSON content type. Streaming routes set
// their own content type and bypass this.
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
