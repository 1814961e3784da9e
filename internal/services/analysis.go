package services

import (
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/kaa08/KTB-Hackathon-11/internal/models"
	"github.com/kaa08/KTB-Hackathon-11/internal/sse"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseStarting   Phase = "starting"
	PhaseSubscribed Phase = "subscribed"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

const (
	msgStartFailed   = "failed to start the analysis"
	msgResultFailed  = "failed to load the analysis result"
	msgAnalysisError = "the analysis failed"
	msgChannelLost   = "lost connection to the progress channel"
	msgEmptyLink     = "please paste a video link"
	msgNoVideoID     = "could not find a video id in that link"
)

// AnalysisState is a snapshot of the orchestrator.
type AnalysisState struct {
	Phase    Phase                  `json:"phase"`
	URL      string                 `json:"url,omitempty"`
	VideoID  string                 `json:"video_id,omitempty"`
	JobID    string                 `json:"job_id,omitempty"`
	Status   models.JobStatus       `json:"status,omitempty"`
	Progress int                    `json:"progress"`
	Message  string                 `json:"message,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Result   *models.AnalysisResult `json:"result,omitempty"`
	Restored bool                   `json:"restored,omitempty"`
}

type JobBackend interface {
	Analyze(ctx context.Context, videoURL string) (*models.AnalyzeResponse, error)
	GetResult(ctx context.Context, jobID string) (*models.AnalysisResult, error)
}

type ProgressSubscriber interface {
	Subscribe(ctx context.Context, jobID string, h sse.Handlers) func()
}

type AnalysisCache interface {
	LoadAnalysis(ctx context.Context) (*models.CachedAnalysis, error)
	SaveAnalysis(ctx context.Context, c models.CachedAnalysis) error
	ClearAnalysis(ctx context.Context) error
}

// NormalizeProgress maps a 0-1 fraction or a 0-100 value onto a whole
// percentage in [0,100]. NaN maps to 0.
func NormalizeProgress(p float64) int {
	if math.IsNaN(p) {
		return 0
	}
	if p <= 1 {
		p *= 100
	}
	return int(math.Round(math.Max(0, math.Min(100, p))))
}

// Analyzer drives one analysis at a time through
// idle -> starting -> subscribed -> completed | failed. Every asynchronous
// callback carries the generation it was started under and is dropped once
// a newer Start has bumped it.
type Analyzer struct {
	backend JobBackend
	channel ProgressSubscriber
	cache   AnalysisCache
	notify  Notifier
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	pubMu     sync.Mutex
	state     AnalysisState
	gen       uint64
	unsub     func()
	listeners map[int]func(AnalysisState)
	nextID    int
}

func NewAnalyzer(backend JobBackend, channel ProgressSubscriber, cache AnalysisCache, notify Notifier) *Analyzer {
	ctx, cancel := context.WithCancel(context.Background())
	if notify == nil {
		notify = LogNotifier{}
	}
	return &Analyzer{
		backend:   backend,
		channel:   channel,
		cache:     cache,
		notify:    notify,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		state:     AnalysisState{Phase: PhaseIdle},
		listeners: make(map[int]func(AnalysisState)),
	}
}

func (a *Analyzer) State() AnalysisState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// OnChange registers fn to receive every new state, in order. fn must not
// call back into the Analyzer. The returned function removes it.
func (a *Analyzer) OnChange(fn func(AnalysisState)) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

// Restore shows the cached result of the last completed analysis, if any,
// without touching the network. It only applies while idle.
func (a *Analyzer) Restore(ctx context.Context) (bool, error) {
	cached, err := a.cache.LoadAnalysis(ctx)
	if err != nil {
		return false, err
	}
	if cached == nil {
		return false, nil
	}

	a.mu.Lock()
	if a.state.Phase != PhaseIdle {
		a.mu.Unlock()
		return false, nil
	}
	result := cached.Result
	a.state = AnalysisState{
		Phase:    PhaseCompleted,
		URL:      cached.URL,
		VideoID:  cached.VideoID,
		JobID:    cached.JobID,
		Status:   models.JobCompleted,
		Progress: 100,
		Result:   &result,
		Restored: true,
	}
	log.Printf("Analysis: restored job %s from cache", cached.JobID)
	a.emitLocked("")
	return true, nil
}

// Start validates rawURL locally, tears down any live channel, clears the
// cached result and asks the backend for a new job. Validation errors make
// no network call.
func (a *Analyzer) Start(ctx context.Context, rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		a.notify.Notify(msgEmptyLink)
		return &ValidationError{Fields: map[string]string{"url": msgEmptyLink}}
	}
	videoID, err := ParseVideoID(rawURL)
	if err != nil {
		a.notify.Notify(msgNoVideoID)
		return err
	}

	a.mu.Lock()
	a.gen++
	gen := a.gen
	a.stopChannelLocked()
	a.state = AnalysisState{
		Phase:   PhaseStarting,
		URL:     rawURL,
		VideoID: videoID,
		Status:  models.JobPending,
	}
	a.emitLocked("")

	if err := a.cache.ClearAnalysis(ctx); err != nil {
		log.Printf("Analysis: failed to clear cached result: %v", err)
	}

	reqCtx, cancel := a.bind(ctx)
	resp, err := a.backend.Analyze(reqCtx, rawURL)
	cancel()
	if err != nil {
		log.Printf("Analysis: start request for %s failed: %v", rawURL, err)
		a.fail(gen, msgStartFailed)
		return err
	}

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return nil
	}
	a.state.Phase = PhaseSubscribed
	a.state.JobID = resp.JobID
	a.state.Message = resp.Message
	a.unsub = a.channel.Subscribe(a.ctx, resp.JobID, a.handlers(gen, resp.JobID))
	log.Printf("Analysis: job %s started for video %s", resp.JobID, videoID)
	a.emitLocked("")
	return nil
}

// Close cancels the live channel and every in-flight request.
func (a *Analyzer) Close() {
	a.cancel()
	a.mu.Lock()
	a.gen++
	a.stopChannelLocked()
	a.mu.Unlock()
}

func (a *Analyzer) handlers(gen uint64, jobID string) sse.Handlers {
	return sse.Handlers{
		OnConnected: func(sse.Event) {
			log.Printf("Analysis: channel connected for job %s", jobID)
		},
		OnProgress: func(ev sse.Event) {
			a.applyProgress(gen, ev)
		},
		OnCompleted: func(sse.Event) {
			a.complete(gen, jobID)
		},
		OnFailed: func(ev sse.Event) {
			msg := msgAnalysisError
			if p, ok := ev.Decoded(); ok {
				if p.Message != "" {
					msg = p.Message
				}
			} else if raw := strings.TrimSpace(ev.Raw); raw != "" {
				msg = raw
			}
			log.Printf("Analysis: job %s failed: %s", jobID, msg)
			a.fail(gen, msg)
		},
		OnError: func(err error) {
			a.mu.Lock()
			current := gen == a.gen
			a.mu.Unlock()
			if !current {
				return
			}
			log.Printf("Analysis: channel error for job %s: %v", jobID, err)
			a.notify.Notify(msgChannelLost)
		},
	}
}

func (a *Analyzer) applyProgress(gen uint64, ev sse.Event) {
	a.mu.Lock()
	if gen != a.gen || a.state.Phase != PhaseSubscribed {
		a.mu.Unlock()
		return
	}

	if p, ok := ev.Decoded(); ok {
		pct := math.NaN()
		if p.Progress != nil {
			pct = float64(*p.Progress)
		}
		a.state.Progress = NormalizeProgress(pct)
		a.state.Status = models.JobProcessing
		if p.Status != "" {
			a.state.Status = models.ParseJobStatus(p.Status)
		}
		if p.Message != "" {
			a.state.Message = p.Message
		}
	} else if raw := strings.TrimSpace(ev.Raw); raw != "" {
		a.state.Message = raw
	}

	a.emitLocked("")
}

// complete fetches the result; the completed event alone never finishes
// the job. The cache write is checked against the generation afterwards
// so a job superseded mid-save never survives in the cache.
func (a *Analyzer) complete(gen uint64, jobID string) {
	a.mu.Lock()
	if gen != a.gen || a.state.Phase != PhaseSubscribed {
		a.mu.Unlock()
		return
	}
	a.state.Status = models.JobCompleted
	a.state.Progress = 100
	a.emitLocked("")

	result, err := a.backend.GetResult(a.ctx, jobID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Printf("Analysis: fetching result for job %s failed: %v", jobID, err)
		a.fail(gen, msgResultFailed)
		return
	}

	a.mu.Lock()
	if gen != a.gen || a.state.Phase != PhaseSubscribed {
		a.mu.Unlock()
		return
	}
	cached := models.CachedAnalysis{
		URL:     a.state.URL,
		VideoID: a.state.VideoID,
		JobID:   jobID,
		Result:  *result,
		SavedAt: a.now().UnixMilli(),
	}
	a.mu.Unlock()

	if err := a.cache.SaveAnalysis(a.ctx, cached); err != nil {
		log.Printf("Analysis: failed to cache result for job %s: %v", jobID, err)
	}

	a.mu.Lock()
	if gen != a.gen || a.state.Phase != PhaseSubscribed {
		a.mu.Unlock()
		a.dropCached(jobID)
		return
	}
	a.state.Phase = PhaseCompleted
	a.state.Result = result
	a.state.Error = ""
	log.Printf("Analysis: job %s completed", jobID)
	a.emitLocked("")
}

// dropCached removes the cached result if it still belongs to jobID.
func (a *Analyzer) dropCached(jobID string) {
	cached, err := a.cache.LoadAnalysis(a.ctx)
	if err != nil || cached == nil || cached.JobID != jobID {
		return
	}
	if err := a.cache.ClearAnalysis(a.ctx); err != nil {
		log.Printf("Analysis: failed to drop stale result for job %s: %v", jobID, err)
		return
	}
	log.Printf("Analysis: dropped stale result for job %s", jobID)
}

func (a *Analyzer) fail(gen uint64, msg string) {
	a.mu.Lock()
	if gen != a.gen || a.state.Phase == PhaseCompleted || a.state.Phase == PhaseFailed {
		a.mu.Unlock()
		return
	}
	a.state.Phase = PhaseFailed
	a.state.Status = models.JobFailed
	a.state.Error = msg
	a.emitLocked(msg)
}

func (a *Analyzer) stopChannelLocked() {
	if a.unsub != nil {
		a.unsub()
		a.unsub = nil
	}
}

// bind derives a request context that also ends when the analyzer closes.
func (a *Analyzer) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(a.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// emitLocked delivers the current state to every listener, preceded by
// toast when it is not empty. It must be called with a.mu held and
// releases it. pubMu is taken first so states reach listeners in the
// order they were taken.
func (a *Analyzer) emitLocked(toast string) {
	s := a.state
	listeners := make([]func(AnalysisState), 0, len(a.listeners))
	for _, fn := range a.listeners {
		listeners = append(listeners, fn)
	}
	a.pubMu.Lock()
	defer a.pubMu.Unlock()
	a.mu.Unlock()

	if toast != "" {
		a.notify.Notify(toast)
	}
	for _, fn := range listeners {
		fn(s)
	}
}
