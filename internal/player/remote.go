package player

import "sync"

// Command is an instruction for a player that lives in another process,
// typically the browser page attached over the websocket.
type Command struct {
	Action  string  `json:"action"` // "seek" | "play"
	Seconds float64 `json:"seconds,omitempty"`
}

// RemotePlayer mirrors a browser-side player. The page reports readiness and
// playback time; seeks and plays are sent back as commands.
type RemotePlayer struct {
	mu       sync.Mutex
	send     func(Command) error
	ready    bool
	position float64
	subs     map[int]func(float64)
	nextID   int
}

func NewRemotePlayer(send func(Command) error) *RemotePlayer {
	return &RemotePlayer{send: send, subs: make(map[int]func(float64))}
}

func (p *RemotePlayer) MarkReady() {
	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()
}

func (p *RemotePlayer) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// UpdateTime records a position reported by the page and fans it out to
// subscribers outside the lock.
func (p *RemotePlayer) UpdateTime(position float64) {
	p.mu.Lock()
	p.ready = true
	p.position = position
	subs := make([]func(float64), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(position)
	}
}

func (p *RemotePlayer) CurrentTime() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return 0, ErrNotReady
	}
	return p.position, nil
}

func (p *RemotePlayer) Seek(seconds float64) error {
	p.mu.Lock()
	if !p.ready {
		p.mu.Unlock()
		return ErrNotReady
	}
	// Assume the seek lands so a stale report cannot trigger a second one.
	p.position = seconds
	p.mu.Unlock()

	return p.send(Command{Action: "seek", Seconds: seconds})
}

func (p *RemotePlayer) Play() error {
	if !p.Ready() {
		return ErrNotReady
	}
	return p.send(Command{Action: "play"})
}

func (p *RemotePlayer) SubscribeTime(fn func(float64)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}
