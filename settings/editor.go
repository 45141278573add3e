// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/medmatch/medmatch/utils/debounce"
)

// DefaultSaveWindow is how long edits are coalesced before being saved.
const DefaultSaveWindow = 450 * time.Millisecond

// Phase is the lifecycle stage of the locally shown settings.
type Phase int

const (
	// Pending: local edits not yet acknowledged by the server.
	Pending Phase = iota
	// Confirmed: the settings are what the server returned.
	Confirmed
	// Reverted: a save failed and the last confirmed value is shown again.
	Reverted
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Reverted:
		return "reverted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is a snapshot of the editor. For Pending, Previous is the value a
// failure would revert to. For Reverted, Err is the save failure.
type State struct {
	Phase    Phase
	Settings AppSettings
	Previous *AppSettings
	Err      error
}

// Store reads and writes the settings of the current user.
type Store interface {
	Fetch(ctx context.Context) (AppSettings, error)
	Update(ctx context.Context, patch Patch) (AppSettings, error)
}

// ErrNotLoaded is returned when editing before Load succeeded.
var ErrNotLoaded = errors.New("settings not loaded")

// Editor applies edits optimistically and saves them, coalesced, after a
// quiet window.
type Editor struct {
	store     Store
	debouncer *debounce.Debouncer

	saveMu sync.Mutex // one save in flight

	mu          sync.Mutex
	loaded      bool
	confirmed   AppSettings
	outstanding Patch
	state       State
	observers   []func(State)
}

// NewEditor returns an editor saving through store. A window of zero uses
// DefaultSaveWindow. Debounced saves run with ctx.
func NewEditor(ctx context.Context, store Store, window time.Duration) *Editor {
	if window <= 0 {
		window = DefaultSaveWindow
	}

	return &Editor{
		store:     store,
		debouncer: debounce.New(ctx, window),
	}
}

// Subscribe registers fn to be called on every state transition. Observers
// run synchronously and must not call back into the editor.
func (e *Editor) Subscribe(fn func(State)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.observers = append(e.observers, fn)
}

// State returns the current snapshot.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// must be called with mu held.
func (e *Editor) transition(s State) {
	e.state = s
	for _, fn := range e.observers {
		fn(s)
	}
}

// must be called with mu held.
func (e *Editor) pendingState() State {
	prev := e.confirmed

	return State{
		Phase:    Pending,
		Settings: e.outstanding.Apply(e.confirmed),
		Previous: &prev,
	}
}

// Load fetches the settings from the store. Edits not saved yet stay
// applied on top.
func (e *Editor) Load(ctx context.Context) (State, error) {
	s, err := e.store.Fetch(ctx)
	if err != nil {
		return e.State(), fmt.Errorf("loading settings: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.loaded = true
	e.confirmed = s
	e.transition(State{Phase: Confirmed, Settings: s})

	if !e.outstanding.IsEmpty() {
		e.transition(e.pendingState())
	}

	return e.state, nil
}

// Edit applies patch locally and schedules a save. Invalid patches are
// rejected without touching the state.
func (e *Editor) Edit(patch Patch) (State, error) {
	if err := patch.Validate(); err != nil {
		return e.State(), err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return e.state, ErrNotLoaded
	}

	if patch.IsEmpty() {
		return e.state, nil
	}

	e.outstanding = e.outstanding.Merge(patch)
	e.transition(e.pendingState())

	e.debouncer.Trigger(func(ctx context.Context) {
		if err := e.save(ctx); err != nil {
			log.Printf("Settings - saving: %v", err)
		}
	})

	return e.state, nil
}

// Save sends any outstanding edits now and waits for the result.
func (e *Editor) Save(ctx context.Context) error {
	e.debouncer.Stop()

	return e.save(ctx)
}

func (e *Editor) save(ctx context.Context) error {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	patch := e.outstanding
	e.outstanding = Patch{}
	e.mu.Unlock()

	if patch.IsEmpty() {
		return nil
	}

	server, err := e.store.Update(ctx, patch)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		prev := e.confirmed
		e.transition(State{Phase: Reverted, Settings: prev, Previous: &prev, Err: err})
	} else {
		e.confirmed = server
		e.transition(State{Phase: Confirmed, Settings: server})
	}

	// edits made while the request was in flight
	if !e.outstanding.IsEmpty() {
		e.transition(e.pendingState())
	}

	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}

	return nil
}
