// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/medmatch/medmatch/provider"
	"github.com/medmatch/medmatch/settings"
	"github.com/medmatch/medmatch/spatial"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "medmatch.yaml"), []byte(`
state_dir: /var/lib/medmatch
geocode_rate: 0.5
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MEDMATCH_GCP_PROJECT=from-dotenv\n"), 0o600))

	t.Setenv("MEDMATCH_API_BASE", "http://backend.test/api/")
	t.Setenv("MEDMATCH_DEBOUNCE", "1s")
	t.Setenv("MEDMATCH_LAT", "30.2654")
	t.Setenv("MEDMATCH_LON", "-97.7431")
	t.Setenv("GOOGLE_MAPS_API_KEY", "maps-key")

	t.Cleanup(func() { os.Unsetenv("MEDMATCH_GCP_PROJECT") })

	require.NoError(t, loadConfig(&cobra.Command{}))

	assert.Equal(t, "http://backend.test/api/", cfg.APIBase)
	assert.Equal(t, "/var/lib/medmatch", cfg.StateDir)
	assert.Equal(t, time.Second, cfg.Debounce)
	assert.InDelta(t, 0.5, cfg.GeocodeRate, 0)
	assert.Equal(t, "maps-key", cfg.GoogleMapsAPIKey)
	assert.Equal(t, "from-dotenv", cfg.GCPProject)
	assert.Equal(t, &spatial.Point{Lat: 30.2654, Lon: -97.7431}, cfg.device())
	assert.Equal(t, filepath.Join("/var/lib/medmatch", sessionFile), cfg.path(sessionFile))
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	require.NoError(t, loadConfig(&cobra.Command{}))

	assert.Equal(t, defaultStateDir(), cfg.StateDir)
	assert.Equal(t, settings.DefaultSaveWindow, cfg.Debounce)
	assert.Nil(t, cfg.device())
}

func TestLastSearch(t *testing.T) {
	c := &Config{StateDir: filepath.Join(t.TempDir(), "state")}

	_, err := c.loadLastSearch()
	require.Error(t, err)

	want := lastSearch{ID: "7", Providers: []provider.Provider{{ID: "1", Name: "Dr. Alicia Patel, MD", Score: 9}}}
	require.NoError(t, c.saveLastSearch(want))

	got, err := c.loadLastSearch()
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestParseAssignments(t *testing.T) {
	patch, err := parseAssignments([]string{"radius=10", "push_notifications=false"})
	require.NoError(t, err)
	require.NotNil(t, patch.DefaultRadiusMiles)
	assert.Equal(t, 10, *patch.DefaultRadiusMiles)
	assert.False(t, *patch.PushNotifications)

	_, err = parseAssignments([]string{"default_radius_miles=500"})
	assert.ErrorIs(t, err, settings.ErrInvalidSettings)

	_, err = parseAssignments([]string{"color=blue"})
	assert.Error(t, err)
}

type recordingStore struct {
	mu      sync.Mutex
	current settings.AppSettings
	updates []settings.Patch
	err     error
}

func (s *recordingStore) Fetch(context.Context) (settings.AppSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current, nil
}

func (s *recordingStore) Update(_ context.Context, patch settings.Patch) (settings.AppSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updates = append(s.updates, patch)
	if s.err != nil {
		return settings.AppSettings{}, s.err
	}

	s.current = patch.Apply(s.current)

	return s.current, nil
}

func TestEdit(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{current: settings.Default(1)}

	editor := settings.NewEditor(ctx, store, time.Hour)
	_, err := editor.Load(ctx)
	require.NoError(t, err)

	var out bytes.Buffer

	input := strings.Join([]string{
		"# lower the radius",
		"radius=10",
		"",
		"age=500",
		"bogus=1",
		"push_notifications=false",
		"radius=15",
	}, "\n")

	require.NoError(t, edit(ctx, editor, strings.NewReader(input), &out))

	require.Len(t, store.updates, 1, "edits are coalesced into one save")
	assert.Equal(t, 15, *store.updates[0].DefaultRadiusMiles)
	assert.False(t, *store.updates[0].PushNotifications)
	assert.Nil(t, store.updates[0].Age)

	assert.Equal(t, settings.Confirmed, editor.State().Phase)
	assert.Contains(t, out.String(), "age=500")
	assert.Contains(t, out.String(), "bogus=1")
}

func TestEditRevertsOnFailure(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{current: settings.Default(1), err: errors.New("boom")}

	editor := settings.NewEditor(ctx, store, time.Hour)
	_, err := editor.Load(ctx)
	require.NoError(t, err)

	var phases []settings.Phase

	editor.Subscribe(func(st settings.State) { phases = append(phases, st.Phase) })

	err = edit(ctx, editor, strings.NewReader("radius=10\n"), &bytes.Buffer{})
	require.Error(t, err)

	assert.Equal(t, []settings.Phase{settings.Pending, settings.Reverted}, phases)
	assert.Equal(t, settings.DefaultRadiusMiles, editor.State().Settings.RadiusMiles())
}

func TestPrintEach(t *testing.T) {
	var out bytes.Buffer

	scanner := bufio.NewScanner(strings.NewReader("Call (512) 555-0143\nPhone: 512.555.8811\n"))
	err := printEach(&out, scanner, func(line string) (any, error) {
		return provider.CleanPhone(&line), nil
	})
	require.NoError(t, err)

	assert.Equal(t,
		"Call (512) 555-0143\t\t\"(512) 555-0143\"\nPhone: 512.555.8811\t\t\"512.555.8811\"\n",
		out.String())
}

func TestPrintProviders(t *testing.T) {
	var out bytes.Buffer

	d := 0.42
	printProviders(&out, []provider.RankedProvider{
		{
			Provider: provider.Provider{
				ID: "1", Name: "Dr. Alicia Patel, MD", Specialty: "Primary Care", Phone: "(512) 555-0143",
				Address: provider.Address{Street: "123 Main St", City: "Austin", Region: "TX", PostalCode: "78701"},
				Score:   9,
			},
			Distance: &d,
		},
		{Provider: provider.Provider{ID: "2", Name: "Riverbend Family Clinic"}},
	})

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "ID "))
	assert.Contains(t, lines[1], "0.4 mi")
	assert.Contains(t, lines[2], "123 Main St, Austin, TX 78701")
	assert.Contains(t, lines[3], "Riverbend Family Clinic")

	out.Reset()
	printProviders(&out, nil)
	assert.Equal(t, "No providers found.\n", out.String())
}

func TestPad(t *testing.T) {
	assert.Equal(t, "ab  ", pad("ab", 4))
	assert.Equal(t, "abc…", pad("abcdefg", 4))
	assert.Equal(t, "ñandú", pad("ñandú", 5))
}
