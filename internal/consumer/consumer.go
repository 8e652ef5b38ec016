package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"readalong/pkg/interfaces"
	"readalong/pkg/types"
)

// State names one phase of the consumer's reconnect loop. Every
// transition has an explicit entry condition instead of inline control
// flow, so each can be observed and tested.
type State string

const (
	StateConnecting   State = "connecting"
	StateStreaming    State = "streaming"
	StateBackoffShort State = "backoff_short"
	StateBackoffLong  State = "backoff_long"
	StateStopped      State = "stopped"
)

// Consumer is one resumable long-poll loop over a session's stream.
// It reconnects forever from the last observed sequence number and
// terminates only through context cancellation.
//
// State machine:
//
//	Connecting -> Streaming -> (BackoffShort|BackoffLong) -> Connecting -> ... -> Stopped
//
// A normal server close takes the short backoff; a transport error
// takes the long one. Neither is surfaced to the caller: transient
// upstream failures appear only as delivery delay.
type Consumer struct {
	store  interfaces.LogStore
	stream string

	wait         time.Duration
	shortBackoff time.Duration
	longBackoff  time.Duration

	mu      sync.Mutex
	state   State
	lastSeq int64
}

// New creates a consumer for the named stream, resuming after
// startSeq (use 0 to read the stream from its beginning).
func New(store interfaces.LogStore, stream string, startSeq int64) *Consumer {
	return &Consumer{
		store:        store,
		stream:       stream,
		wait:         time.Hour,
		shortBackoff: time.Second,
		longBackoff:  2 * time.Second,
		state:        StateConnecting,
		lastSeq:      startSeq,
	}
}

// State returns the current loop phase.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastSeq returns the highest sequence number observed so far.
func (c *Consumer) LastSeq() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeq
}

func (c *Consumer) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// Run drives the loop until ctx is cancelled, invoking yield for every
// decoded event in stream order. Cancellation aborts any in-flight
// long-poll request; Run never returns on its own.
func (c *Consumer) Run(ctx context.Context, yield func(*types.Event)) {
	defer c.setState(StateStopped)

	for {
		c.setState(StateConnecting)
		if ctx.Err() != nil {
			return
		}

		records, err := c.store.ReadBatch(ctx, c.stream, c.LastSeq()+1, c.wait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Stream %s connect failed: %v", c.stream, err)
			if !c.backoff(ctx, StateBackoffLong) {
				return
			}
			continue
		}

		c.setState(StateStreaming)
		next := c.consume(records, yield)
		records.Close()

		if ctx.Err() != nil {
			return
		}
		if !c.backoff(ctx, next) {
			return
		}
	}
}

// consume drains one long-poll response and reports which backoff to
// take before reconnecting.
func (c *Consumer) consume(records interfaces.RecordStream, yield func(*types.Event)) State {
	for {
		frame, err := records.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Server closed the response normally; an empty wait
				// window looks exactly the same. Reconnect promptly.
				return StateBackoffShort
			}
			log.Printf("Stream %s read failed: %v", c.stream, err)
			return StateBackoffLong
		}

		switch frame.Type {
		case types.FrameBatch:
			c.deliver(frame.Records, yield)
		case types.FramePing:
			// keepalive, nothing to deliver
		case types.FrameError:
			// Upstream-reported error does not terminate the stream.
			log.Printf("Stream %s upstream error: %s", c.stream, frame.Message)
		}
	}
}

// deliver decodes and yields each record in batch order. A malformed
// body is dropped without disturbing the rest of the batch, and the
// max with the current value guards lastSeq against out-of-order
// delivery within a batch. Dropped records still advance the cursor so
// a reconnect does not re-fetch them.
func (c *Consumer) deliver(batch []types.LogRecord, yield func(*types.Event)) {
	for _, record := range batch {
		c.mu.Lock()
		if record.SeqNum > c.lastSeq {
			c.lastSeq = record.SeqNum
		}
		c.mu.Unlock()

		var event types.Event
		if err := json.Unmarshal([]byte(record.Body), &event); err != nil {
			log.Printf("Stream %s dropping malformed record seq=%d: %v", c.stream, record.SeqNum, err)
			continue
		}

		yield(&event)
	}
}

// backoff waits out the named delay. It returns false when ctx fired
// during the wait.
func (c *Consumer) backoff(ctx context.Context, state State) bool {
	c.setState(state)

	delay := c.longBackoff
	if state == StateBackoffShort {
		delay = c.shortBackoff
	}

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}
