// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/joho/godotenv"
	"github.com/medmatch/medmatch/backend"
	"github.com/medmatch/medmatch/geocode"
	"github.com/medmatch/medmatch/provider"
	"github.com/medmatch/medmatch/saved"
	"github.com/medmatch/medmatch/settings"
	"github.com/medmatch/medmatch/spatial"
	"github.com/medmatch/medmatch/utils/httputils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

// Config is the merged configuration: flags, MEDMATCH_* variables, .env and
// the optional medmatch.yaml file, in that order of precedence.
type Config struct {
	APIBase          string        `mapstructure:"api_base"`
	StateDir         string        `mapstructure:"state_dir"`
	Debounce         time.Duration `mapstructure:"debounce"`
	TraceHTTP        bool          `mapstructure:"trace_http"`
	GoogleMapsAPIKey string        `mapstructure:"google_maps_api_key"`
	GCPProject       string        `mapstructure:"gcp_project"`
	GeocodeRate      float64       `mapstructure:"geocode_rate"`

	// device position, when configured
	Lat *float64 `mapstructure:"lat"`
	Lon *float64 `mapstructure:"lon"`
}

const (
	sessionFile    = "session.json"
	lastSearchFile = "last_search.json"
	databaseFile   = "medmatch.duckdb"
)

var (
	cfgFile string
	cfg     = &Config{}
)

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".medmatch"
	}

	return filepath.Join(home, ".medmatch")
}

func loadEnvFile() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Config - loading .env: %v", err)
	}
}

func loadConfig(cmd *cobra.Command) error {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("MEDMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("api_base", backend.DefaultBaseURL)
	v.SetDefault("state_dir", defaultStateDir())
	v.SetDefault("debounce", settings.DefaultSaveWindow)
	v.SetDefault("geocode_rate", 1.0)

	for _, env := range []struct{ key, name string }{
		{"google_maps_api_key", "GOOGLE_MAPS_API_KEY"},
		{"gcp_project", "MEDMATCH_GCP_PROJECT"},
	} {
		if err := v.BindEnv(env.key, "MEDMATCH_"+strings.ToUpper(env.key), env.name); err != nil {
			return fmt.Errorf("binding %s: %w", env.name, err)
		}
	}

	flags := cmd.Flags()
	for key, flag := range map[string]string{
		"api_base":   "api-base",
		"state_dir":  "state-dir",
		"trace_http": "trace-http",
	} {
		if f := flags.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("binding --%s: %w", flag, err)
			}
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("medmatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(v.GetString("state_dir"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}

	// viper does not decode unset pointers from env
	if v.IsSet("lat") && v.IsSet("lon") {
		lat, lon := v.GetFloat64("lat"), v.GetFloat64("lon")
		c.Lat, c.Lon = &lat, &lon
	}

	*cfg = c

	return nil
}

func (c *Config) path(name string) string {
	return filepath.Join(c.StateDir, name)
}

func (c *Config) httpTrace() io.Writer {
	if c.TraceHTTP {
		return os.Stderr
	}

	return nil
}

func (c *Config) client() (*backend.Client, error) {
	return backend.NewClient(&backend.ClientOptions{
		BaseURL:   c.APIBase,
		UserAgent: fmt.Sprintf("medmatch/%s", Version),
		HTTPTrace: c.httpTrace(),
	})
}

func (c *Config) httpClient() *http.Client {
	return &http.Client{
		Timeout: 15 * time.Second,
		Transport: httputils.NewTransport(nil, map[string]string{
			"User-Agent": fmt.Sprintf("medmatch/%s", Version),
		}, c.httpTrace()),
	}
}

func (c *Config) session() (*backend.Session, error) {
	sess, err := backend.LoadSession(c.path(sessionFile))
	if errors.Is(err, backend.ErrNoSession) {
		return nil, fmt.Errorf("%w: run medmatch login first", err)
	}

	return sess, err
}

// device returns the configured device position, nil when there is none.
func (c *Config) device() *spatial.Point {
	if c.Lat == nil || c.Lon == nil {
		return nil
	}

	return spatial.NewPoint(*c.Lat, *c.Lon)
}

// resolver chains the offline postal table, Zippopotam and, when a key can
// be found, Google Maps. Remote geocoders share one rate limiter.
func (c *Config) resolver(ctx context.Context) *geocode.Resolver {
	limit := rate.Limit(c.GeocodeRate)
	if c.GeocodeRate <= 0 {
		limit = rate.Inf
	}

	limiter := rate.NewLimiter(limit, 1)
	client := c.httpClient()

	geocoders := []geocode.Geocoder{
		geocode.BuiltinPostalTable,
		geocode.Limit(geocode.NewZippopotam(client), limiter),
	}

	if c.GoogleMapsAPIKey == "" && c.GCPProject == "" {
		return geocode.NewResolver(geocoders...)
	}

	key, err := geocode.GoogleMapsAPIKey(ctx, c.GoogleMapsAPIKey, c.GCPProject)
	if err != nil {
		log.Printf("Geocode - Google Maps disabled: %v", err)
	} else {
		geocoders = append(geocoders, geocode.Limit(geocode.NewGoogleMaps(key, client), limiter))
	}

	return geocode.NewResolver(geocoders...)
}

func (c *Config) openSaved() (saved.Repository, func(), error) {
	if err := os.MkdirAll(c.StateDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("duckdb", c.path(databaseFile))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	repo := saved.NewRepository(db)
	if err := repo.CreateSchema(); err != nil {
		db.Close()

		return nil, nil, err
	}

	return repo, func() { db.Close() }, nil
}

// lastSearch is the result list of the last search, kept so that saved add
// can refer to providers by id.
type lastSearch struct {
	ID        provider.RecordID   `json:"id"`
	Providers []provider.Provider `json:"providers"`
}

func (c *Config) saveLastSearch(ls lastSearch) error {
	if err := os.MkdirAll(c.StateDir, 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := json.Marshal(ls)
	if err != nil {
		return fmt.Errorf("encoding last search: %w", err)
	}

	return os.WriteFile(c.path(lastSearchFile), data, 0o600)
}

func (c *Config) loadLastSearch() (*lastSearch, error) {
	data, err := os.ReadFile(c.path(lastSearchFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.New("no search results yet: run medmatch search first")
	}

	if err != nil {
		return nil, fmt.Errorf("reading last search: %w", err)
	}

	var ls lastSearch
	if err := json.Unmarshal(data, &ls); err != nil {
		return nil, fmt.Errorf("decoding last search: %w", err)
	}

	return &ls, nil
}
