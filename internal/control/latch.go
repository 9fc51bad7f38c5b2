package control

import "sync"

// Latch is the cooperative cancel signal: a one-way flag that, once set,
// never resets. The worker polls IsSet between segments and selects on Done
// at blocking points.
type Latch struct {
	once sync.Once
	done chan struct{}
}

// NewLatch returns an unset latch.
func NewLatch() *Latch {
	return &Latch{done: make(chan struct{})}
}

// Set trips the latch. Safe to call multiple times and from any goroutine.
func (l *Latch) Set() {
	l.once.Do(func() { close(l.done) })
}

// IsSet reports whether the latch has been tripped.
func (l *Latch) IsSet() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the latch is set.
func (l *Latch) Done() <-chan struct{} {
	return l.done
}
