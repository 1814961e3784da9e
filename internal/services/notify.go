package services

import (
	"log"
	"sync"
	"time"

	"github.com/kaa08/KTB-Hackathon-11/internal/models"
)

// Notifier surfaces a transient user-facing message.
type Notifier interface {
	Notify(message string)
}

type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

type LogNotifier struct{}

func (LogNotifier) Notify(message string) { log.Printf("Toast: %s", message) }

// Toaster shows one toast at a time. A new toast replaces the visible one
// and each hides itself after the configured duration. publish receives the
// toast on show and nil on hide.
type Toaster struct {
	mu       sync.Mutex
	duration time.Duration
	publish  func(*models.Toast)
	current  *models.Toast
	timer    *time.Timer
}

func NewToaster(duration time.Duration, publish func(*models.Toast)) *Toaster {
	return &Toaster{duration: duration, publish: publish}
}

func (t *Toaster) Notify(message string) {
	toast := &models.Toast{Message: message, DurationMS: t.duration.Milliseconds()}

	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.current = toast
	t.timer = time.AfterFunc(t.duration, func() { t.hide(toast) })
	t.mu.Unlock()

	t.publish(toast)
}

func (t *Toaster) Current() *models.Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *Toaster) hide(toast *models.Toast) {
	t.mu.Lock()
	if t.current != toast {
		t.mu.Unlock()
		return
	}
	t.current = nil
	t.timer = nil
	t.mu.Unlock()

	t.publish(nil)
}

func (t *Toaster) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
