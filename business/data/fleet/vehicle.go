package fleet

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// Vehicle is a bus, optionally assigned to a trip, with its own copy of the latest position
type Vehicle struct {
	Id               int64      `db:"id" json:"id"`
	Registration     string     `db:"registration" json:"registration"`
	TripId           *int64     `db:"trip_id" json:"trip_id"`
	CurrentLatitude  *float64   `db:"current_latitude" json:"current_latitude"`
	CurrentLongitude *float64   `db:"current_longitude" json:"current_longitude"`
	CurrentSpeed     *float64   `db:"current_speed" json:"current_speed"`
	LastPositionAt   *time.Time `db:"last_position_at" json:"last_position_at"`
}

// UpdateVehiclePosition mirrors the latest coordinates onto the vehicle, guarded by last_position_at the same way
// as UpdateTripPosition. returns true if the vehicle was updated
func UpdateVehiclePosition(ctx context.Context, db *sqlx.DB, vehicleId int64, mirror PositionMirror) (bool, error) {
	statementString := "update vehicle set " +
		"current_latitude = :latitude, " +
		"current_longitude = :longitude, " +
		"current_speed = :speed, " +
		"last_position_at = :recorded_at " +
		"where id = :vehicle_id " +
		"and (last_position_at is null or last_position_at < :recorded_at)"
	result, err := db.NamedExecContext(ctx, statementString, map[string]interface{}{
		"latitude":    mirror.Latitude,
		"longitude":   mirror.Longitude,
		"speed":       mirror.Speed,
		"recorded_at": mirror.RecordedAt,
		"vehicle_id":  vehicleId,
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
