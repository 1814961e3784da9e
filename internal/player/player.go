package player

import (
	"errors"

	"github.com/kaa08/KTB-Hackathon-11/internal/models"
)

// ErrNotReady is returned while the embedded player has not loaded yet. It
// is an expected transient condition, not a failure.
var ErrNotReady = errors.New("player not ready")

// Controller is the handle shared by the timeline and the looper.
type Controller interface {
	CurrentTime() (float64, error)
	Seek(seconds float64) error
	Play() error
}

// TimeNotifier is implemented by players that report their own position.
// The looper prefers it over polling.
type TimeNotifier interface {
	SubscribeTime(fn func(position float64)) (unsubscribe func())
}

// SegmentWindow is the fixed length of a step segment in seconds.
const SegmentWindow = 10.0

// Segment is a {start, end} window in video time.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func SegmentForStep(step models.Step) Segment {
	start := step.StartSeconds()
	return Segment{Start: start, End: start + SegmentWindow}
}

// PlayStep arms the looper with the step's segment and jumps the player to
// its start. The segment is armed even when the player is not ready yet, in
// which case ErrNotReady is returned.
func PlayStep(p Controller, l *Looper, step models.Step) (Segment, error) {
	seg := SegmentForStep(step)
	l.SetSegment(&seg)

	if err := p.Seek(seg.Start); err != nil {
		return seg, err
	}
	return seg, p.Play()
}
