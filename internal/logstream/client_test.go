package logstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"readalong/pkg/types"
)

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://localhost:9999"})
	if !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}

	_, err = NewClient(Config{Token: "secret"})
	if !errors.Is(err, ErrMissingBaseURL) {
		t.Errorf("expected ErrMissingBaseURL, got %v", err)
	}
}

func TestClient_Append(t *testing.T) {
	var gotAuth string
	var gotBody appendRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/streams/session-S1/records" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Errorf("failed to decode append body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, Token: "secret"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	event := &types.Event{Type: types.EventTypeStudentJoin, SessionID: "S1", StudentID: "student1"}
	if err := client.Append(context.Background(), "session-S1", []*types.Event{event}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if len(gotBody.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(gotBody.Records))
	}

	var decoded types.Event
	if err := json.Unmarshal([]byte(gotBody.Records[0].Body), &decoded); err != nil {
		t.Fatalf("record body is not valid JSON: %v", err)
	}
	if decoded.Type != types.EventTypeStudentJoin || decoded.SessionID != "S1" {
		t.Errorf("unexpected decoded event: %+v", decoded)
	}
}

func TestClient_AppendErrors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantAuth   bool
	}{
		{"unauthorized", http.StatusUnauthorized, true},
		{"forbidden", http.StatusForbidden, true},
		{"server error", http.StatusInternalServerError, false},
		{"rate limited", http.StatusTooManyRequests, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			client, _ := NewClient(Config{BaseURL: server.URL, Token: "secret"})
			err := client.Append(context.Background(), "s", []*types.Event{{Type: types.EventTypeSessionEnd}})

			if tt.wantAuth {
				if !errors.Is(err, ErrAuthFailed) {
					t.Errorf("expected ErrAuthFailed, got %v", err)
				}
				return
			}

			var upstream *UpstreamError
			if !errors.As(err, &upstream) {
				t.Fatalf("expected UpstreamError, got %v", err)
			}
			if upstream.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %d, want %d", upstream.StatusCode, tt.statusCode)
			}
		})
	}
}

func TestClient_ReadBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("minSeqNum"); got != "5" {
			t.Errorf("minSeqNum = %s, want 5", got)
		}
		if got := r.URL.Query().Get("wait"); got != "3600" {
			t.Errorf("wait = %s, want 3600", got)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		io.WriteString(w, "event: ping\n\n")
		flusher.Flush()
		io.WriteString(w, "event: batch\ndata: {\"records\":[{\"body\":\"{\\\"type\\\":\\\"progress_update\\\"}\",\"seqNum\":5}]}\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	client, _ := NewClient(Config{BaseURL: server.URL, Token: "secret"})
	stream, err := client.ReadBatch(context.Background(), "session-S1", 5, time.Hour)
	if err != nil {
		t.Fatalf("ReadBatch failed: %v", err)
	}
	defer stream.Close()

	frame, err := stream.Next()
	if err != nil {
		t.Fatalf("first Next failed: %v", err)
	}
	if frame.Type != types.FramePing {
		t.Errorf("first frame = %s, want ping", frame.Type)
	}

	frame, err = stream.Next()
	if err != nil {
		t.Fatalf("second Next failed: %v", err)
	}
	if frame.Type != types.FrameBatch || len(frame.Records) != 1 {
		t.Fatalf("unexpected batch frame: %+v", frame)
	}
	if frame.Records[0].SeqNum != 5 {
		t.Errorf("seqNum = %d, want 5", frame.Records[0].SeqNum)
	}

	// Server closed the response normally after the handler returned.
	if _, err := stream.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF on server close, got %v", err)
	}
}

func TestClient_ReadBatchAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, _ := NewClient(Config{BaseURL: server.URL, Token: "expired"})
	if _, err := client.ReadBatch(context.Background(), "s", 1, time.Hour); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
}

func TestClient_ReadBatchCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client, _ := NewClient(Config{BaseURL: server.URL, Token: "secret"})
	stream, err := client.ReadBatch(ctx, "s", 1, time.Hour)
	if err != nil {
		t.Fatalf("ReadBatch failed: %v", err)
	}
	defer stream.Close()

	done := make(chan error, 1)
	go func() {
		_, err := stream.Next()
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		if err == nil || errors.Is(err, io.EOF) {
			t.Errorf("expected cancellation error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after context cancellation")
	}
}
