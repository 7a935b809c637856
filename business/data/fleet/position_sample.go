package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/OpenTransitTools/fleetcast/foundation/database"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

//PositionSample is one GPS reading recorded for a trip. Samples are append only and are never updated or deleted,
//they are the authoritative history that trip and vehicle mirrors are derived from
type PositionSample struct {
	Id        string  `db:"id" json:"id"`
	TripId    int64   `db:"trip_id" json:"trip_id"`
	VehicleId *int64  `db:"vehicle_id" json:"vehicle_id,omitempty"`
	Latitude  float64 `db:"latitude" json:"latitude"`
	Longitude float64 `db:"longitude" json:"longitude"`
	//Altitude in meters
	Altitude *float64 `db:"altitude" json:"altitude,omitempty"`
	//Accuracy is the reported horizontal accuracy in meters
	Accuracy *float64 `db:"accuracy" json:"accuracy,omitempty"`
	//Heading in degrees clockwise from north
	Heading *float64 `db:"heading" json:"heading,omitempty"`
	//Speed is the device reported speed in km/h
	Speed      *float64  `db:"speed" json:"speed,omitempty"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// RecordPositionSample inserts sample, assigning it a new Id when it doesn't have one
func RecordPositionSample(ctx context.Context, db *sqlx.DB, sample *PositionSample) error {
	if len(sample.Id) == 0 {
		sample.Id = uuid.NewString()
	}
	sample.CreatedAt = time.Now()

	statementString := "insert into position_sample " +
		"(id, " +
		"trip_id, " +
		"vehicle_id, " +
		"latitude, " +
		"longitude, " +
		"altitude, " +
		"accuracy, " +
		"heading, " +
		"speed, " +
		"recorded_at, " +
		"created_at) " +
		"values " +
		"(:id, " +
		":trip_id, " +
		":vehicle_id, " +
		":latitude, " +
		":longitude, " +
		":altitude, " +
		":accuracy, " +
		":heading, " +
		":speed, " +
		":recorded_at, " +
		":created_at)"
	statementString = db.Rebind(statementString)
	_, err := db.NamedExecContext(ctx, statementString, sample)
	return err
}

// GetRecentPositionSamples returns the most recent limit samples for tripId, ordered oldest first
func GetRecentPositionSamples(ctx context.Context, db *sqlx.DB, tripId int64, limit int) ([]*PositionSample, error) {
	query := "select * from position_sample where trip_id = $1 order by recorded_at desc limit $2"
	var results []*PositionSample
	err := db.SelectContext(ctx, &results, db.Rebind(query), tripId, limit)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve recent position_sample rows, error: %w", err)
	}
	reverseSamples(results)
	return results, nil
}

// GetPositionSamples returns up to limit of the latest samples for tripId recorded at or after since, ordered
// oldest first. A nil since returns the latest samples of the whole trip
func GetPositionSamples(ctx context.Context,
	db *sqlx.DB,
	tripId int64,
	since *time.Time,
	limit int) ([]*PositionSample, error) {
	args := map[string]interface{}{
		"trip_id": tripId,
		"limit":   limit,
	}
	statementString := "select * from position_sample where trip_id = :trip_id "
	if since != nil {
		statementString += "and recorded_at >= :since "
		args["since"] = *since
	}
	statementString += "order by recorded_at desc limit :limit"

	rows, err := database.PrepareNamedQueryRowsFromMap(ctx, statementString, db, args)

	defer func() {
		if rows != nil {
			_ = rows.Close()
		}
	}()

	if err != nil {
		return nil, fmt.Errorf("unable to retrieve position_sample rows, error: %w", err)
	}

	samples := make([]*PositionSample, 0)
	for rows.Next() {
		sample := PositionSample{}
		if err = rows.StructScan(&sample); err != nil {
			return nil, fmt.Errorf("unable to scan position_sample row, error: %w", err)
		}
		samples = append(samples, &sample)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	reverseSamples(samples)
	return samples, nil
}

// reverseSamples reverses samples in place
func reverseSamples(samples []*PositionSample) {
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
}
