package actor

import (
	"context"
	"time"
)

// Instance is the resident state of one actor id. It is only used from
// within a unit of work.
type Instance struct {
	host  *Host
	id    string
	state *State
	alarm *armedAlarm
}

type armedAlarm struct {
	at         time.Time
	generation uint64
	timer      Timer
}

// ID returns the actor id.
func (i *Instance) ID() string {
	return i.id
}

// State returns the actor's fields.
func (i *Instance) State() *State {
	return i.state
}

// Now returns the host clock's current time.
func (i *Instance) Now() time.Time {
	return i.host.clock.Now()
}

// AlarmAt reports the armed alarm time, if any.
func (i *Instance) AlarmAt() (time.Time, bool) {
	if i.alarm == nil {
		return time.Time{}, false
	}
	return i.alarm.at, true
}

// SetAlarm replaces any armed alarm with one due at at and persists it.
func (i *Instance) SetAlarm(at time.Time) {
	i.stopTimer()
	gen := nextGeneration()
	alarm := Alarm{Kind: i.host.kind, ID: i.id, At: at.UTC(), Generation: gen}
	i.state.schedule(func(ctx context.Context) error {
		return i.host.storage.PutAlarm(ctx, alarm)
	})
	i.arm(alarm.At, gen)
}

// DeleteAlarm cancels and forgets the armed alarm. It is a no-op without one.
func (i *Instance) DeleteAlarm() {
	if i.alarm == nil {
		return
	}
	i.stopTimer()
	i.alarm = nil
	i.state.schedule(func(ctx context.Context) error {
		return i.host.storage.DeleteAlarm(ctx, i.host.kind, i.id)
	})
}

func (i *Instance) arm(at time.Time, gen uint64) {
	h := i.host
	id := i.id
	delay := max(at.Sub(h.clock.Now()), 0)
	i.alarm = &armedAlarm{at: at, generation: gen}
	i.alarm.timer = h.clock.AfterFunc(delay, func() { h.fire(id, gen) })
}

func (i *Instance) stopTimer() {
	if i.alarm != nil && i.alarm.timer != nil {
		i.alarm.timer.Stop()
	}
}
