package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/kaa08/KTB-Hackathon-11/internal/models"
	"github.com/kaa08/KTB-Hackathon-11/internal/sse"
)

func TestNormalizeProgress(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0.5, 50},
		{45, 45},
		{150, 100},
		{-5, 0},
		{math.NaN(), 0},
		{1, 100},
		{0, 0},
		{0.004, 0},
		{0.996, 100},
		{99.5, 100},
		{math.Inf(1), 100},
	}
	for _, tc := range tests {
		if got := NormalizeProgress(tc.in); got != tc.want {
			t.Errorf("NormalizeProgress(%v): Expected %d, got %d", tc.in, tc.want, got)
		}
	}
}

type fakeJobs struct {
	mu        sync.Mutex
	analyzed  []string
	nextJob   int
	startErr  error
	resultErr error
	results   map[string]*models.AnalysisResult
}

func (f *fakeJobs) Analyze(ctx context.Context, videoURL string) (*models.AnalyzeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzed = append(f.analyzed, videoURL)
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.nextJob++
	return &models.AnalyzeResponse{JobID: fmt.Sprintf("job-%d", f.nextJob), Message: "queued"}, nil
}

func (f *fakeJobs) GetResult(ctx context.Context, jobID string) (*models.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resultErr != nil {
		return nil, f.resultErr
	}
	if r, ok := f.results[jobID]; ok {
		return r, nil
	}
	return &models.AnalysisResult{Recipe: models.Recipe{Title: "result of " + jobID}}, nil
}

func (f *fakeJobs) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.analyzed)
}

// fakeChannel records subscriptions so tests can fire events by hand.
type fakeChannel struct {
	mu       sync.Mutex
	handlers map[string]sse.Handlers
	order    []string
	closed   map[string]int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: map[string]sse.Handlers{}, closed: map[string]int{}}
}

func (c *fakeChannel) Subscribe(ctx context.Context, jobID string, h sse.Handlers) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[jobID] = h
	c.order = append(c.order, jobID)
	return func() {
		c.mu.Lock()
		c.closed[jobID]++
		c.mu.Unlock()
	}
}

func (c *fakeChannel) get(jobID string) sse.Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[jobID]
}

func (c *fakeChannel) closedCount(jobID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed[jobID]
}

type memCache struct {
	mu      sync.Mutex
	entry   *models.CachedAnalysis
	cleared int
	loadErr error
}

func (m *memCache) LoadAnalysis(ctx context.Context) (*models.CachedAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.entry == nil {
		return nil, nil
	}
	c := *m.entry
	return &c, nil
}

func (m *memCache) SaveAnalysis(ctx context.Context, c models.CachedAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry = &c
	return nil
}

func (m *memCache) ClearAnalysis(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry = nil
	m.cleared++
	return nil
}

type toastLog struct {
	mu   sync.Mutex
	msgs []string
}

func (l *toastLog) Notify(msg string) {
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()
}

func (l *toastLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.msgs...)
}

func progressEvent(body string) sse.Event {
	return decodeTestEvent(sse.KindProgress, body)
}

func decodeTestEvent(kind sse.Kind, body string) sse.Event {
	var ev sse.Event
	ev.Kind = kind
	ev.Raw = body
	var p sse.Payload
	if err := jsonUnmarshal(body, &p); err == nil {
		ev.Data = &p
	}
	return ev
}

type analyzerFixture struct {
	jobs    *fakeJobs
	channel *fakeChannel
	cache   *memCache
	toasts  *toastLog
	a       *Analyzer
}

func newAnalyzerFixture(t *testing.T) *analyzerFixture {
	t.Helper()
	f := &analyzerFixture{
		jobs:    &fakeJobs{},
		channel: newFakeChannel(),
		cache:   &memCache{},
		toasts:  &toastLog{},
	}
	f.a = NewAnalyzer(f.jobs, f.channel, f.cache, f.toasts)
	f.a.now = func() time.Time { return time.UnixMilli(1700000000000) }
	t.Cleanup(f.a.Close)
	return f
}

func TestAnalyzer_LocalValidationMakesNoRequest(t *testing.T) {
	f := newAnalyzerFixture(t)

	err := f.a.Start(context.Background(), "   ")
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Fields["url"] == "" {
		t.Errorf("Expected ValidationError for empty url, got %v", err)
	}

	if err := f.a.Start(context.Background(), "https://vt.tiktok.com/ZSabcdef/"); !errors.Is(err, ErrNoVideoID) {
		t.Errorf("Expected ErrNoVideoID, got %v", err)
	}

	if f.jobs.calls() != 0 {
		t.Errorf("Expected no backend calls, got %d", f.jobs.calls())
	}
	if f.a.State().Phase != PhaseIdle {
		t.Errorf("Expected idle, got %s", f.a.State().Phase)
	}
	if len(f.toasts.all()) != 2 {
		t.Errorf("Expected a toast per validation error, got %v", f.toasts.all())
	}
}

func TestAnalyzer_HappyPath(t *testing.T) {
	f := newAnalyzerFixture(t)
	f.cache.entry = &models.CachedAnalysis{JobID: "old"}

	var phases []Phase
	f.a.OnChange(func(s AnalysisState) { phases = append(phases, s.Phase) })

	if err := f.a.Start(context.Background(), "https://youtu.be/abc123XYZ_-"); err != nil {
		t.Fatal(err)
	}
	if f.cache.cleared != 1 {
		t.Error("Expected start to clear the cached result")
	}

	st := f.a.State()
	if st.Phase != PhaseSubscribed || st.JobID != "job-1" || st.VideoID != "abc123XYZ_-" {
		t.Fatalf("Unexpected state after start: %+v", st)
	}

	h := f.channel.get("job-1")
	h.OnConnected(decodeTestEvent(sse.KindConnected, `{}`))
	h.OnProgress(progressEvent(`{"progress":0.25,"message":"transcribing","status":"processing"}`))

	if st := f.a.State(); st.Progress != 25 || st.Message != "transcribing" {
		t.Errorf("Expected 25%% transcribing, got %+v", st)
	}

	h.OnProgress(progressEvent(`{"message":"no number"}`))
	if st := f.a.State(); st.Progress != 0 || st.Message != "no number" {
		t.Errorf("Expected missing progress to normalize to 0, got %+v", st)
	}

	h.OnProgress(progressEvent(`{"progress":70}`))
	if st := f.a.State(); st.Progress != 70 || st.Message != "no number" {
		t.Errorf("Expected 70%% with previous message kept, got %+v", st)
	}

	h.OnCompleted(decodeTestEvent(sse.KindCompleted, `{"status":"completed"}`))

	st = f.a.State()
	if st.Phase != PhaseCompleted || st.Result == nil || st.Result.Recipe.Title != "result of job-1" || st.Progress != 100 {
		t.Fatalf("Expected completed with fetched result, got %+v", st)
	}

	if f.cache.entry == nil {
		t.Fatal("Expected the result to be cached")
	}
	want := models.CachedAnalysis{URL: "https://youtu.be/abc123XYZ_-", VideoID: "abc123XYZ_-", JobID: "job-1", SavedAt: 1700000000000}
	got := *f.cache.entry
	if got.URL != want.URL || got.VideoID != want.VideoID || got.JobID != want.JobID || got.SavedAt != want.SavedAt {
		t.Errorf("Unexpected cache entry %+v", got)
	}

	if phases[0] != PhaseStarting || phases[len(phases)-1] != PhaseCompleted {
		t.Errorf("Unexpected phase sequence %v", phases)
	}
}

func TestAnalyzer_NewStartIgnoresStaleJob(t *testing.T) {
	f := newAnalyzerFixture(t)

	f.a.Start(context.Background(), "https://youtu.be/aaa")
	first := f.channel.get("job-1")

	f.a.Start(context.Background(), "https://youtu.be/bbb")
	if f.channel.closedCount("job-1") != 1 {
		t.Fatal("Expected the first channel to be closed before the second start")
	}

	first.OnProgress(progressEvent(`{"progress":90,"message":"stale"}`))
	first.OnFailed(decodeTestEvent(sse.KindFailed, `{"message":"stale failure"}`))
	first.OnCompleted(decodeTestEvent(sse.KindCompleted, `{}`))
	first.OnError(errors.New("stale transport"))

	st := f.a.State()
	if st.JobID != "job-2" || st.Phase != PhaseSubscribed || st.Progress != 0 || st.Message == "stale" {
		t.Errorf("Expected job-2 untouched by job-1 events, got %+v", st)
	}
	if len(f.toasts.all()) != 0 {
		t.Errorf("Expected no toasts from stale job, got %v", f.toasts.all())
	}
	if f.cache.entry != nil {
		t.Error("Expected stale completion not to be cached")
	}
}

// gateCache holds SaveAnalysis until release is closed.
type gateCache struct {
	*memCache
	entered chan struct{}
	release chan struct{}
}

func (g *gateCache) SaveAnalysis(ctx context.Context, c models.CachedAnalysis) error {
	g.entered <- struct{}{}
	<-g.release
	return g.memCache.SaveAnalysis(ctx, c)
}

func TestAnalyzer_StartDuringResultSave(t *testing.T) {
	channel := newFakeChannel()
	cache := &gateCache{memCache: &memCache{}, entered: make(chan struct{}, 1), release: make(chan struct{})}
	a := NewAnalyzer(&fakeJobs{}, channel, cache, &toastLog{})
	t.Cleanup(a.Close)

	var mu sync.Mutex
	var seen []AnalysisState
	a.OnChange(func(s AnalysisState) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	if err := a.Start(context.Background(), "https://youtu.be/aaa"); err != nil {
		t.Fatal(err)
	}
	first := channel.get("job-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		first.OnCompleted(decodeTestEvent(sse.KindCompleted, `{}`))
	}()

	select {
	case <-cache.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the job-1 result to reach the cache")
	}

	if err := a.Start(context.Background(), "https://youtu.be/bbb"); err != nil {
		t.Fatal(err)
	}
	close(cache.release)
	<-done

	st := a.State()
	if st.Phase != PhaseSubscribed || st.JobID != "job-2" {
		t.Errorf("Expected job-2 subscribed, got %+v", st)
	}
	if cached, _ := cache.LoadAnalysis(context.Background()); cached != nil {
		t.Errorf("Expected no cached result after the second start, got job %s", cached.JobID)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, s := range seen {
		if s.JobID == "job-1" && s.Phase == PhaseCompleted {
			t.Errorf("Expected job-1 completion never to be published, got %+v", s)
		}
	}
	if last := seen[len(seen)-1]; last.JobID != "job-2" {
		t.Errorf("Expected listeners to end on job-2, got %q (%s)", last.JobID, last.Phase)
	}
}

func TestAnalyzer_FailureModes(t *testing.T) {
	t.Run("start request failure", func(t *testing.T) {
		f := newAnalyzerFixture(t)
		f.jobs.startErr = errors.New("connection refused")

		if err := f.a.Start(context.Background(), "https://youtu.be/abc"); err == nil {
			t.Fatal("Expected start error")
		}
		st := f.a.State()
		if st.Phase != PhaseFailed || st.Error != msgStartFailed {
			t.Errorf("Expected generic start failure, got %+v", st)
		}
		if len(f.channel.order) != 0 {
			t.Error("Expected no subscription")
		}
	})

	t.Run("failed event with message", func(t *testing.T) {
		f := newAnalyzerFixture(t)
		f.a.Start(context.Background(), "https://youtu.be/abc")
		f.channel.get("job-1").OnFailed(decodeTestEvent(sse.KindFailed, `{"message":"no speech found"}`))

		st := f.a.State()
		if st.Phase != PhaseFailed || st.Error != "no speech found" {
			t.Errorf("Expected payload message, got %+v", st)
		}
		if toasts := f.toasts.all(); len(toasts) != 1 || toasts[0] != "no speech found" {
			t.Errorf("Expected failure toast, got %v", toasts)
		}
	})

	t.Run("failed event without message", func(t *testing.T) {
		f := newAnalyzerFixture(t)
		f.a.Start(context.Background(), "https://youtu.be/abc")
		f.channel.get("job-1").OnFailed(decodeTestEvent(sse.KindFailed, `{}`))

		if st := f.a.State(); st.Error != msgAnalysisError {
			t.Errorf("Expected generic failure, got %q", st.Error)
		}
	})

	t.Run("result fetch failure after completed", func(t *testing.T) {
		f := newAnalyzerFixture(t)
		f.jobs.resultErr = errors.New("500")
		f.a.Start(context.Background(), "https://youtu.be/abc")
		f.channel.get("job-1").OnCompleted(decodeTestEvent(sse.KindCompleted, `{}`))

		st := f.a.State()
		if st.Phase != PhaseFailed || st.Error != msgResultFailed || st.Result != nil {
			t.Errorf("Expected failed after fetch error, got %+v", st)
		}
		if f.cache.entry != nil {
			t.Error("Expected nothing cached")
		}
	})

	t.Run("transport error only toasts", func(t *testing.T) {
		f := newAnalyzerFixture(t)
		f.a.Start(context.Background(), "https://youtu.be/abc")
		f.channel.get("job-1").OnProgress(progressEvent(`{"progress":40}`))
		f.channel.get("job-1").OnError(sse.ErrStreamClosed)

		st := f.a.State()
		if st.Phase != PhaseSubscribed || st.Progress != 40 {
			t.Errorf("Expected state untouched, got %+v", st)
		}
		if toasts := f.toasts.all(); len(toasts) != 1 || toasts[0] != msgChannelLost {
			t.Errorf("Expected channel toast, got %v", toasts)
		}
	})
}

func TestAnalyzer_RestoreFromCache(t *testing.T) {
	f := newAnalyzerFixture(t)
	f.cache.entry = &models.CachedAnalysis{
		URL:     "https://youtu.be/abc",
		VideoID: "abc",
		JobID:   "job-9",
		Result:  models.AnalysisResult{Recipe: models.Recipe{Title: "Tteokbokki"}},
		SavedAt: 1,
	}

	ok, err := f.a.Restore(context.Background())
	if err != nil || !ok {
		t.Fatalf("Expected restore, got ok=%v err=%v", ok, err)
	}

	st := f.a.State()
	if st.Phase != PhaseCompleted || !st.Restored || st.JobID != "job-9" || st.Result.Recipe.Title != "Tteokbokki" {
		t.Errorf("Unexpected restored state %+v", st)
	}
	if f.jobs.calls() != 0 {
		t.Error("Expected restore without network calls")
	}
}

func TestAnalyzer_RestoreWithoutCache(t *testing.T) {
	f := newAnalyzerFixture(t)
	ok, err := f.a.Restore(context.Background())
	if err != nil || ok {
		t.Errorf("Expected nothing restored, got ok=%v err=%v", ok, err)
	}
	if f.a.State().Phase != PhaseIdle {
		t.Error("Expected to stay idle")
	}
}

func jsonUnmarshal(body string, v interface{}) error {
	return json.Unmarshal([]byte(body), v)
}
