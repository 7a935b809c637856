package fleet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/OpenTransitTools/fleetcast/foundation/geo"
	"github.com/jmoiron/sqlx"
	"gopkg.in/yaml.v3"
)

// CityCoordinate is read only reference data locating a named place
type CityCoordinate struct {
	Name      string  `db:"name" json:"name" yaml:"name"`
	Latitude  float64 `db:"latitude" json:"latitude" yaml:"latitude"`
	Longitude float64 `db:"longitude" json:"longitude" yaml:"longitude"`
}

// Point returns the location of the CityCoordinate
func (c *CityCoordinate) Point() geo.Point {
	return geo.NewPoint(c.Latitude, c.Longitude)
}

// GetCityCoordinate retrieves the CityCoordinate matching name, ignoring case and surrounding white space.
// returns ErrNotFound if there is no match
func GetCityCoordinate(ctx context.Context, db *sqlx.DB, name string) (*CityCoordinate, error) {
	query := "select name, latitude, longitude from city_coordinate where lower(name) = lower($1) limit 1"
	coordinate := CityCoordinate{}
	err := db.GetContext(ctx, &coordinate, db.Rebind(query), strings.TrimSpace(name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve city_coordinate %q, error: %w", name, err)
	}
	return &coordinate, nil
}

// CoordinateBook is an in memory set of CityCoordinates, typically loaded from a yaml file so deployments can
// correct or add places without touching the database
type CoordinateBook struct {
	byName map[string]CityCoordinate
}

type coordinateBookFile struct {
	Coordinates []CityCoordinate `yaml:"coordinates"`
}

// LoadCoordinateBook reads a CoordinateBook from a yaml file at path
func LoadCoordinateBook(path string) (*CoordinateBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCoordinateBook(data)
}

// ParseCoordinateBook builds a CoordinateBook from yaml in the form:
//
//	coordinates:
//	  - name: Nairobi
//	    latitude: -1.2921
//	    longitude: 36.8219
func ParseCoordinateBook(data []byte) (*CoordinateBook, error) {
	var file coordinateBookFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing coordinate book: %w", err)
	}
	book := CoordinateBook{byName: make(map[string]CityCoordinate)}
	for _, c := range file.Coordinates {
		if len(strings.TrimSpace(c.Name)) == 0 {
			return nil, fmt.Errorf("coordinate book entry missing name: %+v", c)
		}
		if !c.Point().IsValid() {
			return nil, fmt.Errorf("coordinate book entry %q has invalid coordinates", c.Name)
		}
		book.byName[normalizePlaceName(c.Name)] = c
	}
	return &book, nil
}

// Len returns the number of places in the book
func (b *CoordinateBook) Len() int {
	return len(b.byName)
}

// LookupCoordinate returns the location of name, and false if the book doesn't contain it
func (b *CoordinateBook) LookupCoordinate(_ context.Context, name string) (geo.Point, bool, error) {
	c, present := b.byName[normalizePlaceName(name)]
	if !present {
		return geo.Point{}, false, nil
	}
	return c.Point(), true, nil
}

func normalizePlaceName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
