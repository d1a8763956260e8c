package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Alert is one up/down change of a service.
type Alert struct {
	Event     Event
	Recovered bool
}

// Sender delivers an alert, e.g. *Slack.
type Sender interface {
	Send(ctx context.Context, a Alert) error
}

type TransitionConfig struct {
	AlertOnRecovery bool
	// Cooldown suppresses repeated DOWN alerts for the same service.
	Cooldown time.Duration
}

type alertState struct {
	up       bool
	lastSent time.Time
}

// Transitions forwards only up/down changes to a Sender. The first event of
// a service counts as a change.
type Transitions struct {
	sender Sender
	cfg    TransitionConfig
	now    func() time.Time

	mu    sync.Mutex
	state map[uuid.UUID]*alertState
}

func NewTransitions(sender Sender, cfg TransitionConfig) *Transitions {
	return &Transitions{
		sender: sender,
		cfg:    cfg,
		now:    time.Now,
		state:  make(map[uuid.UUID]*alertState),
	}
}

func (t *Transitions) Notify(ctx context.Context, ev Event) error {
	if !t.decide(ev) {
		return nil
	}
	return t.sender.Send(ctx, Alert{Event: ev, Recovered: ev.Success})
}

func (t *Transitions) decide(ev Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	rec, seen := t.state[ev.ServiceID]
	changed := !seen || rec.up != ev.Success
	if !seen {
		rec = &alertState{}
		t.state[ev.ServiceID] = rec
	}
	if !changed {
		return false
	}

	// Cooldown only applies to DOWN alerts; recoveries bypass it.
	cooled := rec.lastSent.IsZero() || now.Sub(rec.lastSent) >= t.cfg.Cooldown
	rec.up = ev.Success

	switch {
	case !ev.Success && cooled:
		rec.lastSent = now
		return true
	case ev.Success && seen && t.cfg.AlertOnRecovery:
		rec.lastSent = now
		return true
	}
	return false
}

// Forget drops the state of a deleted service.
func (t *Transitions) Forget(id uuid.UUID) {
	t.mu.Lock()
	delete(t.state, id)
	t.mu.Unlock()
}
