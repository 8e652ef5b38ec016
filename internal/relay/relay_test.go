package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"readalong/internal/session"
	"readalong/pkg/interfaces"
	"readalong/pkg/types"
)

// collectorSink records delivered events and can be told to fail.
type collectorSink struct {
	mu         sync.Mutex
	events     []*types.Event
	failAfter  int // fail once this many events have been accepted, 0 = never
	notifyEach chan struct{}
}

func newCollectorSink() *collectorSink {
	return &collectorSink{notifyEach: make(chan struct{}, 64)}
}

func (s *collectorSink) Send(event *types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.events) >= s.failAfter {
		return errors.New("client disconnected")
	}
	s.events = append(s.events, event)
	select {
	case s.notifyEach <- struct{}{}:
	default:
	}
	return nil
}

func (s *collectorSink) snapshot() []*types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.Event(nil), s.events...)
}

func (s *collectorSink) waitFor(t *testing.T, n int) []*types.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if events := s.snapshot(); len(events) >= n {
			return events
		}
		select {
		case <-s.notifyEach:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, have %d", n, len(s.snapshot()))
		}
	}
}

// replayStream serves one fixed batch then blocks until cancellation.
type replayStream struct {
	frames []types.Frame
	ctx    context.Context
}

func (s *replayStream) Next() (*types.Frame, error) {
	if len(s.frames) > 0 {
		frame := s.frames[0]
		s.frames = s.frames[1:]
		return &frame, nil
	}
	<-s.ctx.Done()
	return nil, s.ctx.Err()
}

func (s *replayStream) Close() error { return nil }

type fakeStore struct {
	mu     sync.Mutex
	frames []types.Frame
	reads  int
}

func (f *fakeStore) Append(ctx context.Context, stream string, events []*types.Event) error {
	return nil
}

func (f *fakeStore) ReadBatch(ctx context.Context, stream string, minSeqNum int64, wait time.Duration) (interfaces.RecordStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.reads > 1 {
		// Later reconnects find no new data and just park.
		return &replayStream{ctx: ctx}, nil
	}
	return &replayStream{frames: f.frames, ctx: ctx}, nil
}

func (f *fakeStore) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func liveBatch(t *testing.T, seq int64, event *types.Event) types.Frame {
	t.Helper()
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return types.Frame{Type: types.FrameBatch, Records: []types.LogRecord{{Body: string(body), SeqNum: seq}}}
}

func TestRelay_AttachUnknownSession(t *testing.T) {
	relay := NewRelay(session.NewRegistry(), &fakeStore{})

	_, err := relay.Attach(context.Background(), "missing", newCollectorSink())
	if !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRelay_ReplayBeforeLive(t *testing.T) {
	registry := session.NewRegistry()
	registry.Create("S1", "T1", "", types.ModeFreeTime)
	registry.AddStudent("S1", "Amy")
	registry.AddStudent("S1", "Ben")

	store := &fakeStore{frames: []types.Frame{
		liveBatch(t, 1, &types.Event{
			Type: types.EventTypeProgressUpdate, SessionID: "S1",
			StudentID: "student1", Progress: 75, Status: types.StatusReading,
		}),
	}}

	relay := NewRelay(registry, store)
	sink := newCollectorSink()

	sub, err := relay.Attach(context.Background(), "S1", sink)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer sub.Detach()

	events := sink.waitFor(t, 4)

	if events[0].Type != types.EventTypeConnected || events[0].SessionID != "S1" {
		t.Errorf("first event must be connected, got %+v", events[0])
	}

	// Roster replay in join order, before any live event.
	if events[1].Type != types.EventTypeStudentJoin || events[1].StudentName != "Amy" {
		t.Errorf("second event must be Amy's replayed join, got %+v", events[1])
	}
	if events[2].Type != types.EventTypeStudentJoin || events[2].StudentName != "Ben" {
		t.Errorf("third event must be Ben's replayed join, got %+v", events[2])
	}
	for _, join := range events[1:3] {
		if join.Progress != 0 || join.Status != types.StatusIdle {
			t.Errorf("replayed join must be progress=0 status=idle, got %+v", join)
		}
	}

	if events[3].Type != types.EventTypeProgressUpdate || events[3].Progress != 75 {
		t.Errorf("live event should follow replay, got %+v", events[3])
	}
}

func TestRelay_DetachStopsConsumer(t *testing.T) {
	registry := session.NewRegistry()
	registry.Create("S1", "T1", "", types.ModeFreeTime)
	store := &fakeStore{}

	relay := NewRelay(registry, store)
	sub, err := relay.Attach(context.Background(), "S1", newCollectorSink())
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	// Let the consumer enter its blocking read.
	time.Sleep(10 * time.Millisecond)

	sub.Detach()
	sub.Detach() // idempotent

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after detach")
	}

	reads := store.readCount()
	time.Sleep(20 * time.Millisecond)
	if store.readCount() != reads {
		t.Error("no further long-poll reads should be issued after detach")
	}
}

func TestRelay_SessionEndStopsConsumer(t *testing.T) {
	registry := session.NewRegistry()
	registry.Create("S1", "T1", "", types.ModeFreeTime)

	store := &fakeStore{frames: []types.Frame{
		liveBatch(t, 1, &types.Event{Type: types.EventTypeSessionEnd, SessionID: "S1"}),
	}}

	relay := NewRelay(registry, store)
	sink := newCollectorSink()

	sub, err := relay.Attach(context.Background(), "S1", sink)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer sub.Detach()

	// The session is evicted by the lifecycle manager before the end
	// record reaches subscribers.
	registry.Remove("S1")

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("consumer should stop once session_end is delivered")
	}

	events := sink.snapshot()
	if final := events[len(events)-1]; final.Type != types.EventTypeSessionEnd {
		t.Errorf("session_end must still reach the sink, got %+v", final)
	}

	reads := store.readCount()
	time.Sleep(20 * time.Millisecond)
	if store.readCount() != reads {
		t.Error("no further long-poll reads should be issued after session_end")
	}
}

func TestRelay_SinkFailureCancelsConsumer(t *testing.T) {
	registry := session.NewRegistry()
	registry.Create("S1", "T1", "", types.ModeFreeTime)

	store := &fakeStore{frames: []types.Frame{
		liveBatch(t, 1, &types.Event{Type: types.EventTypeProgressUpdate, SessionID: "S1"}),
		liveBatch(t, 2, &types.Event{Type: types.EventTypeProgressUpdate, SessionID: "S1"}),
	}}

	relay := NewRelay(registry, store)
	sink := newCollectorSink()
	sink.failAfter = 2 // accept connected + first live event, then fail

	sub, err := relay.Attach(context.Background(), "S1", sink)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer sub.Detach()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("consumer should stop once the sink reports disconnect")
	}
}
