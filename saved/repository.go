// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package saved keeps the providers a user bookmarked from search results.
package saved

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/medmatch/medmatch/provider"
	"github.com/medmatch/medmatch/spatial"
)

// ErrNotSaved is returned when removing a provider that is not saved.
var ErrNotSaved = errors.New("provider not saved")

// NearResolution is the H3 resolution used to prefilter Near lookups.
const NearResolution = 6

// ringMiles is kept under the distance between neighbouring cell centers at
// NearResolution (about 3.5 miles) so the grid disk covers the radius even
// when the origin sits at the edge of its cell.
const ringMiles = 2.5

// maxPrefilterCells bounds the IN list of a Near lookup. Larger disks scan
// every located row instead.
const maxPrefilterCells = 2048

// Entry is a saved provider.
type Entry struct {
	provider.Provider
	SavedAt time.Time `json:"saved_at"`
}

// Repository handles persistence of saved providers.
type Repository interface {
	// CreateSchema creates the saved providers table
	CreateSchema() error

	// Save stores p, replacing a saved provider with the same id
	Save(p provider.Provider) error

	// Remove deletes a saved provider
	Remove(id string) error

	// List returns every saved provider, newest first
	List() ([]Entry, error)

	// Near returns the saved providers within miles of origin, closest first
	Near(origin spatial.Point, miles float64) ([]provider.RankedProvider, error)

	// DB returns the underlying database connection
	DB() *sql.DB
}

type sqlRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a repository over db.
func NewRepository(db *sql.DB) Repository {
	return &sqlRepository{db: db, now: time.Now}
}

func (r *sqlRepository) DB() *sql.DB {
	return r.db
}

func (r *sqlRepository) CreateSchema() error {
	_, err := r.db.Exec(`
		CREATE SEQUENCE IF NOT EXISTS saved_providers_seq START 1;

		CREATE TABLE IF NOT EXISTS saved_providers (
			id VARCHAR PRIMARY KEY,
			seq BIGINT NOT NULL DEFAULT nextval('saved_providers_seq'),
			name VARCHAR NOT NULL,
			specialty VARCHAR NOT NULL,
			phone VARCHAR NOT NULL,
			street VARCHAR NOT NULL,
			city VARCHAR NOT NULL,
			region VARCHAR NOT NULL,
			postal_code VARCHAR NOT NULL,
			location VARCHAR,
			h3_res6 BIGINT,
			score UTINYINT NOT NULL,
			source VARCHAR NOT NULL,
			saved_at TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating saved_providers: %w", err)
	}

	return nil
}

func (r *sqlRepository) Save(p provider.Provider) error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("saving provider: empty id")
	}

	var (
		location any
		cell     any
	)

	if p.Location != nil && p.Location.Valid() {
		location = *p.Location

		c, err := p.Location.Cell(NearResolution)
		if err != nil {
			return err
		}

		cell = int64(c)
	}

	_, err := r.db.Exec(`
		INSERT INTO saved_providers (
			id, name, specialty, phone, street, city, region, postal_code,
			location, h3_res6, score, source, saved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			specialty = excluded.specialty,
			phone = excluded.phone,
			street = excluded.street,
			city = excluded.city,
			region = excluded.region,
			postal_code = excluded.postal_code,
			location = excluded.location,
			h3_res6 = excluded.h3_res6,
			score = excluded.score,
			source = excluded.source
	`,
		p.ID, p.Name, p.Specialty, p.Phone, p.Street, p.City, p.Region, p.PostalCode,
		location, cell, uint8(p.Score), p.Source, r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving provider %s: %w", p.ID, err)
	}

	return nil
}

func (r *sqlRepository) Remove(id string) error {
	res, err := r.db.Exec(`DELETE FROM saved_providers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("removing provider %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("removing provider %s: %w", id, err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotSaved, id)
	}

	return nil
}

const selectColumns = `
	SELECT id, name, specialty, phone, street, city, region, postal_code,
		location, score, source, saved_at
	FROM saved_providers`

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			e        Entry
			location sql.Null[spatial.Point]
			score    uint8
		)

		if err := rows.Scan(
			&e.ID, &e.Name, &e.Specialty, &e.Phone,
			&e.Street, &e.City, &e.Region, &e.PostalCode,
			&location, &score, &e.Source, &e.SavedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning saved provider: %w", err)
		}

		if location.Valid {
			p := location.V
			e.Location = &p
		}

		e.Score = provider.Score(score)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (r *sqlRepository) List() ([]Entry, error) {
	rows, err := r.db.Query(selectColumns + ` ORDER BY saved_at DESC, seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing saved providers: %w", err)
	}

	return scanEntries(rows)
}

func (r *sqlRepository) Near(origin spatial.Point, miles float64) ([]provider.RankedProvider, error) {
	if !origin.Valid() || miles <= 0 {
		return nil, fmt.Errorf("near %s within %v miles: invalid origin or radius", origin, miles)
	}

	cells, err := origin.CellsWithin(NearResolution, miles, ringMiles)
	if err != nil {
		return nil, err
	}

	query := selectColumns + ` WHERE location IS NOT NULL`

	var args []any

	if len(cells) <= maxPrefilterCells {
		placeholders := strings.Repeat("?, ", len(cells)-1) + "?"
		query += ` AND h3_res6 IN (` + placeholders + `)`

		args = make([]any, len(cells))
		for i, c := range cells {
			args[i] = int64(c)
		}
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying saved providers near %s: %w", origin, err)
	}

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	candidates := make([]provider.Provider, len(entries))
	for i, e := range entries {
		candidates[i] = e.Provider
	}

	ranked := provider.Rank(candidates, &origin, provider.SortByDistance)

	ret := make([]provider.RankedProvider, 0, len(ranked))

	for _, rp := range ranked {
		if rp.Distance != nil && *rp.Distance <= miles {
			ret = append(ret, rp)
		}
	}

	return ret, nil
}
