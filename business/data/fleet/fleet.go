// Package fleet provides CRUD functionality for trips, vehicles and their recorded positions
package fleet

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// PositionMirror is the denormalized latest position copied onto trip and vehicle records.
// The position_sample table is authoritative, mirror fields are a last-write cache for fast reads.
type PositionMirror struct {
	Latitude   float64   `db:"latitude"`
	Longitude  float64   `db:"longitude"`
	Speed      *float64  `db:"speed"`
	RecordedAt time.Time `db:"recorded_at"`
	//EstimatedArrival is nil when the arrival time could not be computed
	EstimatedArrival *time.Time `db:"estimated_arrival"`
}

func formatTime(time *time.Time) string {
	if time == nil {
		return ""
	}
	return time.Format("2006-01-02T15:04:05")
}
