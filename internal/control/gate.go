package control

import "sync"

// Gate is the cooperative pause signal shared between the orchestrator and
// the transcription worker. It starts open (running); closing it parks any
// worker that calls Wait until the gate is opened again. The wait is a
// channel receive, so a parked worker consumes no CPU.
type Gate struct {
	mu     sync.Mutex
	open   bool
	unpark chan struct{}
}

// NewGate returns an open gate.
func NewGate() *Gate {
	return &Gate{
		open:   true,
		unpark: make(chan struct{}),
	}
}

// Close flips the gate to paused. Subsequent Wait calls block until Open.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return
	}
	g.open = false
	g.unpark = make(chan struct{})
}

// Open flips the gate to running and wakes every parked waiter.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return
	}
	g.open = true
	close(g.unpark)
}

// IsOpen reports whether the gate currently allows work to proceed.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Wait blocks until the gate is open. Returns immediately when already open.
func (g *Gate) Wait() {
	g.mu.Lock()
	if g.open {
		g.mu.Unlock()
		return
	}
	ch := g.unpark
	g.mu.Unlock()
	<-ch
}
