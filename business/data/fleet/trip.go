package fleet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Trip is a scheduled bus journey between two cities, with the denormalized latest position of its vehicle
type Trip struct {
	Id          int64  `db:"id" json:"id"`
	Origin      string `db:"origin" json:"origin"`
	Destination string `db:"destination" json:"destination"`
	//Stops is the serialized (json array) ordered list of intermediate stop names
	Stops                    string    `db:"stops" json:"stops"`
	DepartureTime            time.Time `db:"departure_time" json:"departure_time"`
	EstimatedDurationMinutes int       `db:"estimated_duration_minutes" json:"estimated_duration_minutes"`
	VehicleId                *int64    `db:"vehicle_id" json:"vehicle_id"`
	//TrackingActive is set by the first ingested position and cleared when the trip is completed
	TrackingActive   bool       `db:"tracking_active" json:"tracking_active"`
	CurrentLatitude  *float64   `db:"current_latitude" json:"current_latitude"`
	CurrentLongitude *float64   `db:"current_longitude" json:"current_longitude"`
	CurrentSpeed     *float64   `db:"current_speed" json:"current_speed"`
	LastPositionAt   *time.Time `db:"last_position_at" json:"last_position_at"`
	EstimatedArrival *time.Time `db:"estimated_arrival" json:"estimated_arrival"`
}

// ScheduledArrival returns the arrival time according to the trip's schedule
func (t *Trip) ScheduledArrival() time.Time {
	return t.DepartureTime.Add(time.Duration(t.EstimatedDurationMinutes) * time.Minute)
}

func (t Trip) String() string {
	return fmt.Sprintf("Trip Id:%d, %s -> %s, departs:%s tracking:%t lastPosition:%s",
		t.Id, t.Origin, t.Destination, formatTime(&t.DepartureTime), t.TrackingActive, formatTime(t.LastPositionAt))
}

// GetTrip retrieves Trip with tripId, returns ErrNotFound if it doesn't exist
func GetTrip(ctx context.Context, db *sqlx.DB, tripId int64) (*Trip, error) {
	query := "select * from trip where id = $1"
	trip := Trip{}
	err := db.GetContext(ctx, &trip, db.Rebind(query), tripId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve trip %d, error: %w", tripId, err)
	}
	return &trip, nil
}

// UpdateTripPosition writes mirror onto the trip and marks its tracking active.
// the update only happens when mirror.RecordedAt is newer than the trip's last_position_at so samples committed out
// of order can't overwrite a fresher position.
// returns true if the trip was updated
func UpdateTripPosition(ctx context.Context, db *sqlx.DB, tripId int64, mirror PositionMirror) (bool, error) {
	statementString := "update trip set " +
		"tracking_active = true, " +
		"current_latitude = :latitude, " +
		"current_longitude = :longitude, " +
		"current_speed = :speed, " +
		"last_position_at = :recorded_at, " +
		"estimated_arrival = :estimated_arrival " +
		"where id = :trip_id " +
		"and (last_position_at is null or last_position_at < :recorded_at)"
	result, err := db.NamedExecContext(ctx, statementString, map[string]interface{}{
		"latitude":          mirror.Latitude,
		"longitude":         mirror.Longitude,
		"speed":             mirror.Speed,
		"recorded_at":       mirror.RecordedAt,
		"estimated_arrival": mirror.EstimatedArrival,
		"trip_id":           tripId,
	})
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
