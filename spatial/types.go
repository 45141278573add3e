// Copyright 2025 The MedMatch Authors
//
// SPDX-License-Identifier: Apache-2.0
package spatial

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/uber/h3-go/v4"
)

const (
	earthRadiusMeters = 6371e3
	earthRadiusMiles  = 3958.8
)

// Point represents a geographical point with latitude and longitude in WGS84
// degrees. Values are not range checked.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewPoint returns a pointer to a Point, handy for optional coordinates.
func NewPoint(lat, lon float64) *Point {
	return &Point{Lat: lat, Lon: lon}
}

// String returns a string representation of the Point.
func (p Point) String() string {
	return fmt.Sprintf("POINT(%f %f)", p.Lon, p.Lat)
}

// Value implements the driver.Valuer interface, as WKT.
func (p Point) Value() (driver.Value, error) {
	return fmt.Sprintf("POINT (%s %s)",
		strconv.FormatFloat(p.Lon, 'g', -1, 64),
		strconv.FormatFloat(p.Lat, 'g', -1, 64)), nil
}

// Scan implements the sql.Scanner interface. It reads WKT points, with or
// without a space after POINT, and the {x, y} structs DuckDB returns for
// POINT_2D columns.
func (p *Point) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*p = Point{}

		return nil
	case []byte:
		return p.parseWKT(string(v))
	case string:
		return p.parseWKT(v)
	case map[string]any:
		x, okX := v["x"].(float64)
		y, okY := v["y"].(float64)

		if !okX || !okY {
			return fmt.Errorf("spatial: invalid map for point: expected 'x' and 'y' float64 fields, got %+v", v)
		}

		p.Lon, p.Lat = x, y

		return nil
	default:
		return fmt.Errorf("spatial: unsupported type for Point scan: %T", value)
	}
}

func (p *Point) parseWKT(s string) error {
	body, ok := strings.CutPrefix(strings.TrimSpace(s), "POINT")
	body = strings.TrimSpace(body)

	if !ok || !strings.HasPrefix(body, "(") || !strings.HasSuffix(body, ")") {
		return fmt.Errorf("spatial: not a WKT point: %q", s)
	}

	fields := strings.Fields(body[1 : len(body)-1])
	if len(fields) != 2 {
		return fmt.Errorf("spatial: not a WKT point: %q", s)
	}

	lon, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return fmt.Errorf("spatial: longitude in %q: %w", s, err)
	}

	lat, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return fmt.Errorf("spatial: latitude in %q: %w", s, err)
	}

	p.Lat, p.Lon = lat, lon

	return nil
}

// Valid reports whether both components are finite numbers.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) &&
		!math.IsNaN(p.Lon) && !math.IsInf(p.Lon, 0)
}

// centralAngle is the haversine great-circle angle between two points, in radians.
func centralAngle(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	// rounding can push h a hair above 1 for antipodal points
	return 2 * math.Asin(math.Sqrt(min(h, 1)))
}

// DistanceMiles calculates the haversine distance between two points in miles.
func (p Point) DistanceMiles(other Point) float64 {
	return earthRadiusMiles * centralAngle(p, other)
}

// DistanceMeters calculates the haversine distance between two points in meters.
func (p Point) DistanceMeters(other Point) float64 {
	return earthRadiusMeters * centralAngle(p, other)
}

// HaversineMiles returns the distance in miles between two optional points.
// The result is nil when either point is missing or not finite; it never
// defaults to zero.
func HaversineMiles(a, b *Point) *float64 {
	if a == nil || b == nil || !a.Valid() || !b.Valid() {
		return nil
	}

	d := a.DistanceMiles(*b)

	return &d
}

// Cell returns the H3 cell containing the point at the given resolution.
func (p Point) Cell(res int) (h3.Cell, error) {
	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lon), res)
	if err != nil {
		return 0, fmt.Errorf("converting %s to h3 cell at res %d: %w", p, res, err)
	}

	return cell, nil
}

// CellsWithin returns the H3 cells at resolution res that cover a disk of
// radius miles around the point. ringMiles is the approximate distance
// between the centers of neighbouring cells at that resolution.
func (p Point) CellsWithin(res int, miles, ringMiles float64) ([]h3.Cell, error) {
	origin, err := p.Cell(res)
	if err != nil {
		return nil, err
	}

	k := int(math.Ceil(miles/ringMiles)) + 1

	cells, err := h3.GridDisk(origin, k)
	if err != nil {
		return nil, fmt.Errorf("computing h3 grid disk k=%d around %s: %w", k, p, err)
	}

	return cells, nil
}
