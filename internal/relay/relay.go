package relay

import (
	"context"
	"log"
	"sync"
	"time"

	"readalong/internal/consumer"
	"readalong/pkg/interfaces"
	"readalong/pkg/types"
)

// Sink is one outbound subscriber connection (an SSE response, a
// WebSocket, a test collector). Send must preserve call order; a
// returned error means the subscriber is gone.
type Sink interface {
	Send(event *types.Event) error
}

// Relay bridges the log stream of one session to subscriber sinks. On
// attach it replays the current roster from the local mirror, then
// forwards live events from a dedicated stream consumer. The mirror,
// not the remote log, is the source of truth for the replay: a teacher
// subscribing late still sees every joined student immediately.
//
// Replay events happen-before any live event on the same attach, but
// the replay is not cut at a specific sequence number, so a join may
// be delivered twice (once replayed, once live). Subscribers tolerate
// this; the relay never deduplicates.
type Relay struct {
	registry interfaces.SessionRegistry
	store    interfaces.LogStore
}

// NewRelay creates a relay over the given registry and log store.
func NewRelay(registry interfaces.SessionRegistry, store interfaces.LogStore) *Relay {
	return &Relay{
		registry: registry,
		store:    store,
	}
}

// Attach subscribes sink to the session's event stream. The first
// event is always `connected`, followed by one synthetic join per
// roster entry, followed by live events in log order. The returned
// subscription detaches the sink and cancels the in-flight long poll.
func (r *Relay) Attach(ctx context.Context, sessionID string, sink Sink) (*Subscription, error) {
	session, err := r.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}

	if err := sink.Send(&types.Event{
		Type:      types.EventTypeConnected,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}); err != nil {
		return nil, err
	}

	roster, err := r.registry.Roster(sessionID)
	if err != nil {
		return nil, err
	}
	for _, student := range roster {
		join := &types.Event{
			Type:        types.EventTypeStudentJoin,
			SessionID:   sessionID,
			StudentID:   student.ID,
			StudentName: student.Name,
			Status:      types.StatusIdle,
			Timestamp:   student.JoinedAt,
		}
		if err := sink.Send(join); err != nil {
			return nil, err
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	cons := consumer.New(r.store, session.StreamName, 0)

	sub := &Subscription{
		cancel:   cancel,
		done:     make(chan struct{}),
		consumer: cons,
	}

	go func() {
		defer close(sub.done)
		cons.Run(subCtx, func(event *types.Event) {
			if err := sink.Send(event); err != nil {
				log.Printf("Subscriber for session %s went away: %v", sessionID, err)
				cancel()
				return
			}
			// session_end is the stream's final record; the session is
			// gone from the registry, so stop long-polling its stream.
			if event.Type == types.EventTypeSessionEnd {
				log.Printf("Session %s ended, stopping subscriber consumer", sessionID)
				cancel()
			}
		})
	}()

	log.Printf("Subscriber attached: session=%s roster=%d", sessionID, len(roster))
	return sub, nil
}

// Subscription is the detach handle for one attached sink.
type Subscription struct {
	cancel   context.CancelFunc
	once     sync.Once
	done     chan struct{}
	consumer *consumer.Consumer
}

// Detach stops the underlying consumer and aborts its in-flight
// long-poll request. Safe to call more than once.
func (s *Subscription) Detach() {
	s.once.Do(s.cancel)
}

// Done is closed once the consumer loop has fully stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Consumer exposes the underlying stream consumer for observability.
func (s *Subscription) Consumer() *consumer.Consumer {
	return s.consumer
}
