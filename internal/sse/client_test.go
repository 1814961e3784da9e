package sse

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	errs   []error
	done   chan struct{}
	once   sync.Once
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) add(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	if ev.Kind.Terminal() {
		r.once.Do(func() { close(r.done) })
	}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnConnected: r.add,
		OnProgress:  r.add,
		OnCompleted: r.add,
		OnFailed:    r.add,
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.once.Do(func() { close(r.done) })
		},
	}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel events")
	}
}

func (r *recorder) snapshot() ([]Event, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...), append([]error(nil), r.errs...)
}

func streamServer(t *testing.T, body string, holdOpen bool) (*httptest.Server, chan string) {
	t.Helper()
	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path + "|" + r.Header.Get("email")
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, body)
		w.(http.Flusher).Flush()
		if holdOpen {
			<-r.Context().Done()
		}
	}))
	t.Cleanup(srv.Close)
	return srv, paths
}

func TestSubscribe_DispatchesInOrderAndClosesOnCompleted(t *testing.T) {
	body := "event: connected\ndata: {\"jobId\":\"job-1\"}\n\n" +
		": keep-alive\n\n" +
		"event: progress\nid: 7\ndata: {\"progress\":0.5,\"message\":\"transcribing\"}\n\n" +
		"event: ping\ndata: {}\n\n" +
		"event: progress\ndata: {\"progress\":\"80\"}\n\n" +
		"event: completed\ndata: {\"status\":\"completed\"}\n\n" +
		"event: failed\ndata: {\"message\":\"late\"}\n\n"

	srv, paths := streamServer(t, body, true)

	client := NewClient(srv.URL+"/", func(h http.Header) { h.Set("email", "cook@example.com") })
	rec := newRecorder()
	cancel := client.Subscribe(context.Background(), "job-1", rec.handlers())
	defer cancel()

	rec.wait(t)

	if got := <-paths; got != "/sse/jobs/job-1|cook@example.com" {
		t.Errorf("Expected request path with email header, got %q", got)
	}

	events, errs := rec.snapshot()
	if len(errs) != 0 {
		t.Fatalf("Expected no transport errors, got %v", errs)
	}

	kinds := make([]Kind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	want := []Kind{KindConnected, KindProgress, KindProgress, KindCompleted}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Fatalf("Expected kinds %v, got %v", want, kinds)
	}

	p, ok := events[1].Decoded()
	if !ok || p.Progress == nil || float64(*p.Progress) != 0.5 || p.Message != "transcribing" {
		t.Errorf("Unexpected progress payload: %+v", p)
	}
	if events[1].ID != "7" {
		t.Errorf("Expected event id 7, got %q", events[1].ID)
	}
	p, _ = events[2].Decoded()
	if p.Progress == nil || float64(*p.Progress) != 80 {
		t.Errorf("Expected string progress to decode to 80, got %+v", p.Progress)
	}
}

func TestSubscribe_RawPayloadPassesThrough(t *testing.T) {
	body := "event: failed\ndata: pipeline exploded\n\n"
	srv, _ := streamServer(t, body, false)

	rec := newRecorder()
	cancel := NewClient(srv.URL, nil).Subscribe(context.Background(), "job-2", rec.handlers())
	defer cancel()
	rec.wait(t)

	events, _ := rec.snapshot()
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if _, ok := events[0].Decoded(); ok {
		t.Error("Expected raw fallback for non-JSON payload")
	}
	if events[0].Raw != "pipeline exploded" {
		t.Errorf("Expected raw payload to be unmodified, got %q", events[0].Raw)
	}
}

func TestSubscribe_MultilineData(t *testing.T) {
	body := "event: progress\ndata: {\"message\":\ndata: \"two lines\"}\n\nevent: completed\ndata: {}\n\n"
	srv, _ := streamServer(t, body, false)

	rec := newRecorder()
	NewClient(srv.URL, nil).Subscribe(context.Background(), "job", rec.handlers())
	rec.wait(t)

	events, _ := rec.snapshot()
	p, ok := events[0].Decoded()
	if !ok || p.Message != "two lines" {
		t.Errorf("Expected joined data lines to decode, got %+v (raw %q)", p, events[0].Raw)
	}
}

func TestSubscribe_NonOKStatusReportsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	rec := newRecorder()
	NewClient(srv.URL, nil).Subscribe(context.Background(), "job", rec.handlers())
	rec.wait(t)

	events, errs := rec.snapshot()
	if len(events) != 0 || len(errs) != 1 {
		t.Fatalf("Expected exactly one error, got events=%d errs=%v", len(events), errs)
	}
	if !strings.Contains(errs[0].Error(), "502") {
		t.Errorf("Expected status in error, got %v", errs[0])
	}
}

func TestSubscribe_EOFWithoutTerminalIsTransportError(t *testing.T) {
	srv, _ := streamServer(t, "event: progress\ndata: {\"progress\":10}\n\n", false)

	rec := newRecorder()
	NewClient(srv.URL, nil).Subscribe(context.Background(), "job", rec.handlers())
	rec.wait(t)

	_, errs := rec.snapshot()
	if len(errs) != 1 || !errors.Is(errs[0], ErrStreamClosed) {
		t.Fatalf("Expected ErrStreamClosed, got %v", errs)
	}
}

func TestSubscribe_CancelIsIdempotentAndSilent(t *testing.T) {
	connected := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: connected\ndata: {}\n\n")
		w.(http.Flusher).Flush()
		close(connected)
		<-r.Context().Done()
	}))
	defer srv.Close()

	var mu sync.Mutex
	var errs []error
	cancel := NewClient(srv.URL, nil).Subscribe(context.Background(), "job", Handlers{
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	})

	<-connected
	cancel()
	cancel()
	cancel()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 0 {
		t.Errorf("Expected cancellation to be silent, got %v", errs)
	}
}

func TestPercent_UnparseableIsNaN(t *testing.T) {
	ev := newEvent(KindProgress, "", `{"progress":"almost"}`)
	p, ok := ev.Decoded()
	if !ok || p.Progress == nil {
		t.Fatalf("Expected decoded payload with progress, got %+v", p)
	}
	if !math.IsNaN(float64(*p.Progress)) {
		t.Errorf("Expected NaN, got %v", *p.Progress)
	}
}
