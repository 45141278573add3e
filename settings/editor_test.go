// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore is a Store keeping settings in memory and recording writes.
type memoryStore struct {
	mu      sync.Mutex
	current AppSettings
	patches []Patch
	failErr error
	block   chan struct{}
}

func (m *memoryStore) Fetch(context.Context) (AppSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current, nil
}

func (m *memoryStore) Update(_ context.Context, patch Patch) (AppSettings, error) {
	if m.block != nil {
		<-m.block
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.patches = append(m.patches, patch)
	if m.failErr != nil {
		return AppSettings{}, m.failErr
	}

	m.current = patch.Apply(m.current)

	return m.current, nil
}

func (m *memoryStore) writes() []Patch {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Patch(nil), m.patches...)
}

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) observe(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states = append(r.states, s)
}

func (r *recorder) phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()

	ret := make([]Phase, 0, len(r.states))
	for _, s := range r.states {
		ret = append(ret, s.Phase)
	}

	return ret
}

func newLoadedEditor(t *testing.T, store *memoryStore, window time.Duration) (*Editor, *recorder) {
	t.Helper()

	e := NewEditor(context.Background(), store, window)
	rec := &recorder{}
	e.Subscribe(rec.observe)

	st, err := e.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, Confirmed, st.Phase)

	return e, rec
}

func TestEditorRapidEditsSaveOnce(t *testing.T) {
	store := &memoryStore{current: Default(1)}
	e, rec := newLoadedEditor(t, store, 40*time.Millisecond)

	for _, age := range []int{30, 31, 32} {
		st, err := e.Edit(Patch{Age: ptr(age)})
		require.NoError(t, err)
		assert.Equal(t, Pending, st.Phase)
		assert.Equal(t, age, *st.Settings.Age, "edits apply locally right away")
	}

	assert.Eventually(t, func() bool {
		return e.State().Phase == Confirmed
	}, 2*time.Second, 5*time.Millisecond)

	writes := store.writes()
	require.Len(t, writes, 1)
	assert.Equal(t, 32, *writes[0].Age)
	assert.Equal(t, 32, *e.State().Settings.Age)

	assert.Equal(t, []Phase{Confirmed, Pending, Pending, Pending, Confirmed}, rec.phases())
}

func TestEditorMergesFieldsIntoOneWrite(t *testing.T) {
	store := &memoryStore{current: Default(1)}
	e, _ := newLoadedEditor(t, store, time.Hour)

	_, err := e.Edit(Patch{Age: ptr(50)})
	require.NoError(t, err)
	_, err = e.Edit(Patch{MemberID: ptr("XYZ123")})
	require.NoError(t, err)

	require.NoError(t, e.Save(context.Background()))

	writes := store.writes()
	require.Len(t, writes, 1)
	assert.Equal(t, 50, *writes[0].Age)
	assert.Equal(t, "XYZ123", *writes[0].MemberID)

	// nothing left to send
	require.NoError(t, e.Save(context.Background()))
	assert.Len(t, store.writes(), 1)
}

func TestEditorRevertsOnFailure(t *testing.T) {
	boom := errors.New("PATCH 500")
	store := &memoryStore{current: Default(1), failErr: boom}
	e, rec := newLoadedEditor(t, store, time.Hour)

	st, err := e.Edit(Patch{DefaultRadiusMiles: ptr(80)})
	require.NoError(t, err)
	require.Equal(t, 80, st.Settings.RadiusMiles())

	err = e.Save(context.Background())
	require.ErrorIs(t, err, boom)

	st = e.State()
	assert.Equal(t, Reverted, st.Phase)
	assert.ErrorIs(t, st.Err, boom)
	assert.Equal(t, DefaultRadiusMiles, st.Settings.RadiusMiles())
	require.NotNil(t, st.Previous)
	assert.Equal(t, DefaultRadiusMiles, st.Previous.RadiusMiles())

	assert.Equal(t, []Phase{Confirmed, Pending, Reverted}, rec.phases())
}

func TestEditorConfirmedReplacesLocalState(t *testing.T) {
	store := &memoryStore{current: Default(1)}
	e, _ := newLoadedEditor(t, store, time.Hour)

	_, err := e.Edit(Patch{MemberLastName: ptr("Doe")})
	require.NoError(t, err)

	// the server normalizes what it stores
	store.mu.Lock()
	store.current.InsurancePlanName = ptr("Gold PPO")
	store.mu.Unlock()

	require.NoError(t, e.Save(context.Background()))

	st := e.State()
	assert.Equal(t, Confirmed, st.Phase)
	assert.Equal(t, "Doe", *st.Settings.MemberLastName)
	assert.Equal(t, "Gold PPO", *st.Settings.InsurancePlanName)
}

func TestEditorEditsDuringFlightStayPending(t *testing.T) {
	store := &memoryStore{current: Default(1), block: make(chan struct{})}
	e, _ := newLoadedEditor(t, store, time.Hour)

	_, err := e.Edit(Patch{Age: ptr(20)})
	require.NoError(t, err)

	saved := make(chan error, 1)
	go func() { saved <- e.Save(context.Background()) }()

	// wait for the save to take the outstanding patch
	assert.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()

		return e.outstanding.IsEmpty()
	}, time.Second, time.Millisecond)

	_, err = e.Edit(Patch{MemberID: ptr("late")})
	require.NoError(t, err)

	close(store.block)
	require.NoError(t, <-saved)

	st := e.State()
	assert.Equal(t, Pending, st.Phase)
	assert.Equal(t, 20, *st.Settings.Age)
	assert.Equal(t, "late", *st.Settings.MemberID)
	require.NotNil(t, st.Previous)
	assert.Equal(t, 20, *st.Previous.Age)
	assert.Nil(t, st.Previous.MemberID)

	require.NoError(t, e.Save(context.Background()))
	assert.Equal(t, Confirmed, e.State().Phase)
	assert.Len(t, store.writes(), 2)
}

func TestEditorRejectsInvalidEdit(t *testing.T) {
	store := &memoryStore{current: Default(1)}
	e, rec := newLoadedEditor(t, store, time.Hour)

	_, err := e.Edit(Patch{Age: ptr(130)})
	require.ErrorIs(t, err, ErrInvalidSettings)

	assert.Equal(t, Confirmed, e.State().Phase)
	assert.Equal(t, []Phase{Confirmed}, rec.phases())
}

func TestEditorRequiresLoad(t *testing.T) {
	e := NewEditor(context.Background(), &memoryStore{}, time.Hour)

	_, err := e.Edit(Patch{Age: ptr(3)})
	assert.ErrorIs(t, err, ErrNotLoaded)
}
