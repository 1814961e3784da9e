package sse

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind names the events a job channel emits.
type Kind string

const (
	KindConnected Kind = "connected"
	KindProgress  Kind = "progress"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
)

func (k Kind) known() bool {
	switch k {
	case KindConnected, KindProgress, KindCompleted, KindFailed:
		return true
	}
	return false
}

// Terminal reports whether the channel closes after this event.
func (k Kind) Terminal() bool {
	return k == KindCompleted || k == KindFailed
}

// Payload is the decoded body shared by every job event.
type Payload struct {
	JobID    string   `json:"jobId,omitempty"`
	Status   string   `json:"status,omitempty"`
	Progress *Percent `json:"progress,omitempty"`
	Step     string   `json:"step,omitempty"`
	Message  string   `json:"message,omitempty"`
	VideoID  string   `json:"videoId,omitempty"`
}

// Percent is a progress value sent either as a number or as a numeric
// string. Values that do not parse decode to NaN.
type Percent float64

func (p *Percent) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*p = Percent(math.NaN())
		return nil
	}
	*p = Percent(f)
	return nil
}

// Event is one dispatched channel event. Exactly one of Data or Raw is
// meaningful: Data holds the decoded payload, and when the body was not a
// JSON object Data is nil and Raw carries the body unmodified.
type Event struct {
	Kind Kind
	ID   string
	Data *Payload
	Raw  string
}

// Decoded returns the payload and whether the body was valid JSON.
func (e Event) Decoded() (Payload, bool) {
	if e.Data == nil {
		return Payload{}, false
	}
	return *e.Data, true
}

func newEvent(kind Kind, id, data string) Event {
	ev := Event{Kind: kind, ID: id, Raw: data}
	var p Payload
	if err := json.Unmarshal([]byte(data), &p); err == nil {
		ev.Data = &p
	}
	return ev
}
