package clock

import (
	"sync"
	"time"
)

// State is a motion clock reference state. Position is only meaningful
// when extrapolated from Timestamp; Query returns the state as of the
// query instant, never the last stored instant.
type State struct {
	Timestamp    time.Time
	Position     float64
	Velocity     float64
	Acceleration float64
}

// Partial is a partial clock update. Nil fields retain their previous
// (extrapolated) value.
type Partial struct {
	Position     *float64
	Velocity     *float64
	Acceleration *float64
}

// MotionClock holds one process-wide motion clock. Safe for concurrent
// use; Query is cheap enough to call once per animation frame.
type MotionClock struct {
	mu    sync.RWMutex
	state State
	now   func() time.Time
}

// New creates a motion clock at position 0 with no motion.
func New() *MotionClock {
	return NewAt(time.Now)
}

// NewAt creates a motion clock with an injectable time source.
func NewAt(now func() time.Time) *MotionClock {
	return &MotionClock{
		state: State{Timestamp: now()},
		now:   now,
	}
}

// Query returns the state extrapolated to the current instant using
// constant-acceleration kinematics.
func (c *MotionClock) Query() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.at(c.now())
}

// at extrapolates to t. Caller holds at least a read lock.
func (c *MotionClock) at(t time.Time) State {
	dt := t.Sub(c.state.Timestamp).Seconds()
	if dt < 0 {
		dt = 0
	}
	return State{
		Timestamp:    t,
		Position:     c.state.Position + c.state.Velocity*dt + 0.5*c.state.Acceleration*dt*dt,
		Velocity:     c.state.Velocity + c.state.Acceleration*dt,
		Acceleration: c.state.Acceleration,
	}
}

// Update merges a partial state. Omitted fields keep the value they have
// at the update instant, so motion is continuous across the update: the
// retained fields are extrapolated to now before the overlay, and the
// stored timestamp is always reset to now. Never blocks, never fails.
func (c *MotionClock) Update(p Partial) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.at(c.now())
	if p.Position != nil {
		next.Position = *p.Position
	}
	if p.Velocity != nil {
		next.Velocity = *p.Velocity
	}
	if p.Acceleration != nil {
		next.Acceleration = *p.Acceleration
	}
	c.state = next
}

// Freeze zeroes the velocity so the clock stops driving its own timeline.
// Called once on process shutdown.
func (c *MotionClock) Freeze() {
	v := 0.0
	c.Update(Partial{Velocity: &v})
}
