package logstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"readalong/pkg/interfaces"
	"readalong/pkg/types"
)

// Config holds the log service connection settings. BaseURL points at
// the basin endpoint; Token is the bearer credential. A missing token
// is fatal at construction rather than a degraded runtime state.
type Config struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// Client is a thin adapter over the remote append-only log service.
// Streams are created implicitly by the service on first append or
// read; the client never issues an explicit create call.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient validates credentials and returns a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// No client-side timeout: read requests carry a server-side
		// wait budget on the order of an hour.
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    httpClient,
	}, nil
}

// recordsURL builds the per-stream records endpoint.
func (c *Client) recordsURL(stream string) string {
	return fmt.Sprintf("%s/v1/streams/%s/records", c.baseURL, url.PathEscape(stream))
}

type appendRequest struct {
	Records []appendRecord `json:"records"`
}

type appendRecord struct {
	Body string `json:"body"`
}

// Append serializes events and appends them to the stream in one call.
func (c *Client) Append(ctx context.Context, stream string, events []*types.Event) error {
	records := make([]appendRecord, 0, len(events))
	for _, event := range events {
		body, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		records = append(records, appendRecord{Body: string(body)})
	}

	payload, err := json.Marshal(appendRequest{Records: records})
	if err != nil {
		return fmt.Errorf("failed to encode append request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.recordsURL(stream), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build append request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("append to stream %s failed: %w", stream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrAuthFailed
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return nil
}

// ReadBatch issues one long-poll read starting at minSeqNum. The
// returned stream yields frames as the response body arrives; it must
// be closed by the caller. Cancelling ctx aborts the in-flight request.
func (c *Client) ReadBatch(ctx context.Context, stream string, minSeqNum int64, wait time.Duration) (interfaces.RecordStream, error) {
	endpoint := fmt.Sprintf("%s?minSeqNum=%d&wait=%d", c.recordsURL(stream), minSeqNum, int(wait.Seconds()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build read request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("read from stream %s failed: %w", stream, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, ErrAuthFailed
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return &readStream{
		body:   resp.Body,
		parser: NewFrameParser(),
		buf:    make([]byte, 4096),
	}, nil
}

// readStream adapts one long-poll response body into decoded frames.
type readStream struct {
	body    io.ReadCloser
	parser  *FrameParser
	buf     []byte
	pending []types.Frame
	err     error
}

// Next returns the next frame, blocking on the network as needed.
// Frames decoded before a read error are delivered first; a normal
// server close surfaces as io.EOF.
func (rs *readStream) Next() (*types.Frame, error) {
	for {
		if len(rs.pending) > 0 {
			frame := rs.pending[0]
			rs.pending = rs.pending[1:]
			return &frame, nil
		}
		if rs.err != nil {
			return nil, rs.err
		}

		n, err := rs.body.Read(rs.buf)
		if n > 0 {
			rs.pending = append(rs.pending, rs.parser.Feed(rs.buf[:n])...)
		}
		if err != nil {
			rs.err = err
		}
	}
}

// Close releases the underlying response body.
func (rs *readStream) Close() error {
	return rs.body.Close()
}
