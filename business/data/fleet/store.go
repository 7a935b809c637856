package fleet

import (
	"context"
	"errors"
	"time"

	"github.com/OpenTransitTools/fleetcast/foundation/geo"
	"github.com/jmoiron/sqlx"
)

//Store binds the fleet CRUD functions to a database so they can be handed to components that only know about
//the operations they need
type Store struct {
	db *sqlx.DB
}

//MakeStore creates Store
func MakeStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Trip(ctx context.Context, tripId int64) (*Trip, error) {
	return GetTrip(ctx, s.db, tripId)
}

func (s *Store) RecordPositionSample(ctx context.Context, sample *PositionSample) error {
	return RecordPositionSample(ctx, s.db, sample)
}

func (s *Store) RecentPositionSamples(ctx context.Context, tripId int64, limit int) ([]*PositionSample, error) {
	return GetRecentPositionSamples(ctx, s.db, tripId, limit)
}

func (s *Store) PositionSamples(ctx context.Context, tripId int64, since *time.Time, limit int) ([]*PositionSample, error) {
	return GetPositionSamples(ctx, s.db, tripId, since, limit)
}

func (s *Store) UpdateTripPosition(ctx context.Context, tripId int64, mirror PositionMirror) (bool, error) {
	return UpdateTripPosition(ctx, s.db, tripId, mirror)
}

func (s *Store) UpdateVehiclePosition(ctx context.Context, vehicleId int64, mirror PositionMirror) (bool, error) {
	return UpdateVehiclePosition(ctx, s.db, vehicleId, mirror)
}

// LookupCoordinate resolves name using the city_coordinate table. A missing place is not an error
func (s *Store) LookupCoordinate(ctx context.Context, name string) (geo.Point, bool, error) {
	c, err := GetCityCoordinate(ctx, s.db, name)
	if errors.Is(err, ErrNotFound) {
		return geo.Point{}, false, nil
	}
	if err != nil {
		return geo.Point{}, false, err
	}
	return c.Point(), true, nil
}
