package player

import (
	"errors"
	"log"
	"sync"
	"time"
)

// endTolerance absorbs timer jitter so the looper does not oscillate around
// the segment end.
const endTolerance = 0.05

// Looper keeps playback inside the active segment: once the position passes
// segment.End-0.05s it seeks back to segment.Start and resumes. It follows
// the player's own time updates when the player is a TimeNotifier and polls
// on a fixed interval otherwise. At most one polling goroutine is live.
type Looper struct {
	mu       sync.Mutex
	player   Controller
	interval time.Duration
	segment  *Segment
	enabled  bool
	gen      uint64
	stop     chan struct{}
	unsub    func()
}

func NewLooper(p Controller, interval time.Duration) *Looper {
	l := &Looper{player: p, interval: interval}
	if n, ok := p.(TimeNotifier); ok {
		l.unsub = n.SubscribeTime(l.Observe)
	}
	return l
}

func (l *Looper) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
	l.rearmLocked()
}

// SetSegment replaces the active segment; nil clears it.
func (l *Looper) SetSegment(seg *Segment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seg != nil {
		s := *seg
		seg = &s
	}
	l.segment = seg
	l.rearmLocked()
}

func (l *Looper) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

func (l *Looper) Segment() *Segment {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.segment == nil {
		return nil
	}
	s := *l.segment
	return &s
}

// Observe evaluates a reported playback position.
func (l *Looper) Observe(position float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evaluateLocked(position)
}

// Check polls the player once and reports whether it seeked.
func (l *Looper) Check() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkLocked()
}

func (l *Looper) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = false
	l.segment = nil
	l.rearmLocked()
	if l.unsub != nil {
		l.unsub()
		l.unsub = nil
	}
}

func (l *Looper) checkLocked() bool {
	if !l.active() {
		return false
	}
	pos, err := l.player.CurrentTime()
	if err != nil {
		if !errors.Is(err, ErrNotReady) {
			log.Printf("Looper: read position: %v", err)
		}
		return false
	}
	return l.evaluateLocked(pos)
}

func (l *Looper) evaluateLocked(pos float64) bool {
	if !l.active() || pos <= l.segment.End-endTolerance {
		return false
	}
	if err := l.player.Seek(l.segment.Start); err != nil {
		if !errors.Is(err, ErrNotReady) {
			log.Printf("Looper: seek: %v", err)
		}
		return false
	}
	if err := l.player.Play(); err != nil && !errors.Is(err, ErrNotReady) {
		log.Printf("Looper: play: %v", err)
	}
	return true
}

func (l *Looper) active() bool {
	return l.enabled && l.segment != nil
}

// rearmLocked tears down the running poller and starts a new one if the
// looper is active and the player cannot notify on its own.
func (l *Looper) rearmLocked() {
	l.gen++
	if l.stop != nil {
		close(l.stop)
		l.stop = nil
	}
	if !l.active() || l.unsub != nil || l.interval <= 0 {
		return
	}

	stop := make(chan struct{})
	l.stop = stop
	go l.poll(l.gen, stop)
}

func (l *Looper) poll(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			if l.gen != gen {
				l.mu.Unlock()
				return
			}
			l.checkLocked()
			l.mu.Unlock()
		}
	}
}
