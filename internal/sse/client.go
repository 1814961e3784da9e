package sse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrStreamClosed is reported when the server ends the stream before a
// completed or failed event arrived.
var ErrStreamClosed = errors.New("push channel closed before a terminal event")

// Handlers receive channel events in receipt order, all on the goroutine
// that reads the stream. Nil handlers are skipped.
type Handlers struct {
	OnConnected func(Event)
	OnProgress  func(Event)
	OnCompleted func(Event)
	OnFailed    func(Event)
	OnError     func(error)
}

// HeaderFunc decorates the subscription request, e.g. with identity headers.
type HeaderFunc func(h http.Header)

// Client opens job progress channels at {baseURL}/sse/jobs/{jobID}.
type Client struct {
	baseURL    string
	httpClient *http.Client
	headers    HeaderFunc
}

func NewClient(baseURL string, headers HeaderFunc) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Streams stay open for the whole job, so no client timeout.
		httpClient: &http.Client{},
		headers:    headers,
	}
}

// Subscribe opens a channel for jobID and returns its teardown function.
// The channel closes itself after the first completed or failed event. The
// returned function may be called any number of times. It never reconnects.
func (c *Client) Subscribe(ctx context.Context, jobID string, h Handlers) func() {
	ctx, stop := context.WithCancel(ctx)
	go c.run(ctx, stop, jobID, h)
	return func() { stop() }
}

func (c *Client) run(ctx context.Context, stop context.CancelFunc, jobID string, h Handlers) {
	defer stop()

	endpoint := c.baseURL + "/sse/jobs/" + url.PathEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		notifyError(ctx, h, fmt.Errorf("create request: %w", err))
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.headers != nil {
		c.headers(req.Header)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		notifyError(ctx, h, fmt.Errorf("connect push channel: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		notifyError(ctx, h, fmt.Errorf("push channel returned status %d", resp.StatusCode))
		return
	}

	terminal, err := readEvents(resp.Body, func(ev Event) bool {
		if ctx.Err() != nil {
			return false
		}
		dispatch(h, ev)
		return !ev.Kind.Terminal()
	})

	switch {
	case terminal, ctx.Err() != nil:
	case err != nil:
		notifyError(ctx, h, fmt.Errorf("read push channel: %w", err))
	default:
		notifyError(ctx, h, ErrStreamClosed)
	}
}

func dispatch(h Handlers, ev Event) {
	var fn func(Event)
	switch ev.Kind {
	case KindConnected:
		fn = h.OnConnected
	case KindProgress:
		fn = h.OnProgress
	case KindCompleted:
		fn = h.OnCompleted
	case KindFailed:
		fn = h.OnFailed
	}
	if fn != nil {
		fn(ev)
	}
}

func notifyError(ctx context.Context, h Handlers, err error) {
	if ctx.Err() != nil || h.OnError == nil {
		return
	}
	h.OnError(err)
}

// readEvents parses a text/event-stream body and hands each recognised event
// to emit until emit returns false. It reports whether emission stopped on a
// terminal event.
func readEvents(r io.Reader, emit func(Event) bool) (bool, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		kind string
		id   string
		data []string
	)

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if len(data) > 0 && Kind(kind).known() {
				ev := newEvent(Kind(kind), id, strings.Join(data, "\n"))
				if !emit(ev) {
					return ev.Kind.Terminal(), nil
				}
			}
			kind, data = "", data[:0]
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			kind = value
		case "data":
			data = append(data, value)
		case "id":
			id = value
		}
	}

	return false, scanner.Err()
}
