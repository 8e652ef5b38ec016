package logstream

import (
	"bytes"
	"encoding/json"
	"log"

	"readalong/pkg/types"
)

// FrameParser incrementally decodes the frame-delimited read stream
// (`event:` / `data:` lines separated by blank lines). Network chunks
// arrive at arbitrary boundaries, so partial lines are buffered across
// Feed calls until a full line can be recognized.
type FrameParser struct {
	buf   []byte // carry-over for a line split across chunks
	event string
	data  []byte
}

// NewFrameParser creates an empty parser.
func NewFrameParser() *FrameParser {
	return &FrameParser{}
}

// Feed consumes one network chunk and returns any frames completed by
// it. A frame is dispatched when its terminating blank line has been
// seen in full.
func (p *FrameParser) Feed(chunk []byte) []types.Frame {
	p.buf = append(p.buf, chunk...)

	var frames []types.Frame
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			return frames
		}

		line := p.buf[:idx]
		p.buf = p.buf[idx+1:]
		line = bytes.TrimSuffix(line, []byte("\r"))

		if frame, ok := p.handleLine(line); ok {
			frames = append(frames, frame)
		}
	}
}

// handleLine processes one complete line. It returns a decoded frame
// when the line terminates a pending frame.
func (p *FrameParser) handleLine(line []byte) (types.Frame, bool) {
	switch {
	case len(line) == 0:
		// Blank line terminates a frame. Spurious blank lines with
		// nothing pending are ignored.
		if p.event == "" && len(p.data) == 0 {
			return types.Frame{}, false
		}
		frame, ok := p.decode()
		p.event = ""
		p.data = nil
		return frame, ok

	case bytes.HasPrefix(line, []byte("event:")):
		p.event = string(bytes.TrimSpace(line[len("event:"):]))

	case bytes.HasPrefix(line, []byte("data:")):
		value := bytes.TrimPrefix(line[len("data:"):], []byte(" "))
		if len(p.data) > 0 {
			p.data = append(p.data, '\n')
		}
		p.data = append(p.data, value...)

	case line[0] == ':':
		// comment line, keepalive noise
	}

	return types.Frame{}, false
}

// decode turns the buffered event name and payload into a frame.
func (p *FrameParser) decode() (types.Frame, bool) {
	switch p.event {
	case types.FramePing:
		return types.Frame{Type: types.FramePing}, true

	case types.FrameError:
		var payload struct {
			Error string `json:"error"`
		}
		msg := string(p.data)
		if err := json.Unmarshal(p.data, &payload); err == nil && payload.Error != "" {
			msg = payload.Error
		}
		return types.Frame{Type: types.FrameError, Message: msg}, true

	case types.FrameBatch:
		var payload struct {
			Records []types.LogRecord `json:"records"`
		}
		if err := json.Unmarshal(p.data, &payload); err != nil {
			log.Printf("Dropping malformed batch frame: %v", err)
			return types.Frame{}, false
		}
		return types.Frame{Type: types.FrameBatch, Records: payload.Records}, true

	default:
		log.Printf("Ignoring unknown frame type %q", p.event)
		return types.Frame{}, false
	}
}
