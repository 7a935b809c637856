package tracking

import (
	"fmt"
	"time"

	"github.com/OpenTransitTools/fleetcast/business/data/fleet"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// PositionReport is one GPS reading as received from a device or feed, before it is recorded
type PositionReport struct {
	TripId    int64    `json:"trip_id" validate:"gt=0"`
	VehicleId *int64   `json:"vehicle_id,omitempty" validate:"omitempty,gt=0"`
	Latitude  float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64  `json:"longitude" validate:"gte=-180,lte=180"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	Heading   *float64 `json:"heading,omitempty" validate:"omitempty,gte=0,lte=360"`
	//Speed device reported speed in km/h
	Speed      *float64  `json:"speed,omitempty" validate:"omitempty,gte=0"`
	RecordedAt time.Time `json:"recorded_at" validate:"required"`
}

//ValidateReport checks report ranges and that it was recorded within tuning.MaxSampleAge before now and no more
//than tuning.MaxClockSkew after it. errors wrap ErrInvalidReport
func ValidateReport(report *PositionReport, now time.Time, tuning Tuning) error {
	if err := validate.Struct(report); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	age := now.Sub(report.RecordedAt)
	if age > tuning.MaxSampleAge {
		return fmt.Errorf("%w: recorded_at %s is older than %s", ErrInvalidReport,
			report.RecordedAt.Format(time.RFC3339), tuning.MaxSampleAge)
	}
	if -age > tuning.MaxClockSkew {
		return fmt.Errorf("%w: recorded_at %s is in the future", ErrInvalidReport,
			report.RecordedAt.Format(time.RFC3339))
	}
	return nil
}

// sample converts report to a fleet.PositionSample ready to be recorded
func (r *PositionReport) sample() *fleet.PositionSample {
	return &fleet.PositionSample{
		TripId:     r.TripId,
		VehicleId:  r.VehicleId,
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		Altitude:   r.Altitude,
		Accuracy:   r.Accuracy,
		Heading:    r.Heading,
		Speed:      r.Speed,
		RecordedAt: r.RecordedAt,
	}
}
