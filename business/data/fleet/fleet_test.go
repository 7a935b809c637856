package fleet

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/matryer/is"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = mockDB.Close() })
	return sqlx.NewDb(mockDB, "pgx"), mock
}

func float64Ptr(f float64) *float64 {
	return &f
}

var tripColumns = []string{"id", "origin", "destination", "stops", "departure_time", "estimated_duration_minutes",
	"vehicle_id", "tracking_active", "current_latitude", "current_longitude", "current_speed", "last_position_at",
	"estimated_arrival"}

var sampleColumns = []string{"id", "trip_id", "vehicle_id", "latitude", "longitude", "altitude", "accuracy",
	"heading", "speed", "recorded_at", "created_at"}

func TestGetTrip(t *testing.T) {
	is := is.New(t)
	db, mock := newMockDB(t)
	departure := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("select * from trip where id = $1")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(tripColumns).AddRow(int64(42), "Nairobi", "Kisumu", `["Nakuru"]`,
			departure, 360, int64(9), true, -1.1, 36.1, 55.0, departure.Add(time.Hour), nil))

	trip, err := GetTrip(context.Background(), db, 42)
	is.NoErr(err)
	is.Equal(trip.Destination, "Kisumu")
	is.Equal(trip.Stops, `["Nakuru"]`)
	is.Equal(*trip.VehicleId, int64(9))
	is.True(trip.TrackingActive)
	is.Equal(*trip.CurrentSpeed, 55.0)
	is.Equal(trip.EstimatedArrival, nil)
	is.Equal(trip.ScheduledArrival(), departure.Add(6*time.Hour))
	is.NoErr(mock.ExpectationsWereMet())
}

func TestGetTrip_NotFound(t *testing.T) {
	is := is.New(t)
	db, mock := newMockDB(t)

	mock.ExpectQuery("select \\* from trip").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(tripColumns))

	_, err := GetTrip(context.Background(), db, 1)
	is.True(errors.Is(err, ErrNotFound))
}

func TestUpdateTripPosition(t *testing.T) {
	recordedAt := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		name         string
		rowsAffected int64
		want         bool
	}{
		{
			name:         "newer sample updates the mirror",
			rowsAffected: 1,
			want:         true,
		},
		{
			name:         "older sample leaves the mirror alone",
			rowsAffected: 0,
			want:         false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			db, mock := newMockDB(t)
			mock.ExpectExec(regexp.QuoteMeta("update trip set tracking_active = true, current_latitude = $1")).
				WithArgs(-0.3031, 36.08, sqlmock.AnyArg(), recordedAt, sqlmock.AnyArg(), int64(5), recordedAt).
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))

			got, err := UpdateTripPosition(context.Background(), db, 5, PositionMirror{
				Latitude:   -0.3031,
				Longitude:  36.08,
				Speed:      float64Ptr(60),
				RecordedAt: recordedAt,
			})
			is.NoErr(err)
			is.Equal(got, tt.want)
			is.NoErr(mock.ExpectationsWereMet())
		})
	}
}

func TestUpdateTripPosition_Error(t *testing.T) {
	is := is.New(t)
	db, mock := newMockDB(t)
	mock.ExpectExec("update trip set").WillReturnError(sqlmock.ErrCancelled)

	_, err := UpdateTripPosition(context.Background(), db, 5, PositionMirror{RecordedAt: time.Now()})
	is.True(err != nil)
}

func TestUpdateVehiclePosition(t *testing.T) {
	is := is.New(t)
	db, mock := newMockDB(t)
	recordedAt := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("update vehicle set current_latitude = $1")).
		WithArgs(-0.3031, 36.08, sqlmock.AnyArg(), recordedAt, int64(9), recordedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := UpdateVehiclePosition(context.Background(), db, 9, PositionMirror{
		Latitude:   -0.3031,
		Longitude:  36.08,
		RecordedAt: recordedAt,
	})
	is.NoErr(err)
	is.True(got)
	is.NoErr(mock.ExpectationsWereMet())
}

func TestRecordPositionSample(t *testing.T) {
	is := is.New(t)
	db, mock := newMockDB(t)
	recordedAt := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	mock.ExpectExec("insert into position_sample").
		WithArgs(sqlmock.AnyArg(), int64(5), sqlmock.AnyArg(), -0.3031, 36.08, sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), recordedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	sample := PositionSample{
		TripId:     5,
		Latitude:   -0.3031,
		Longitude:  36.08,
		Speed:      float64Ptr(48),
		RecordedAt: recordedAt,
	}
	is.NoErr(RecordPositionSample(context.Background(), db, &sample))
	is.True(len(sample.Id) > 0)
	is.True(!sample.CreatedAt.IsZero())
	is.NoErr(mock.ExpectationsWereMet())
}

func TestRecordPositionSample_Error(t *testing.T) {
	is := is.New(t)
	db, mock := newMockDB(t)
	mock.ExpectExec("insert into position_sample").WillReturnError(sqlmock.ErrCancelled)

	err := RecordPositionSample(context.Background(), db, &PositionSample{TripId: 5, RecordedAt: time.Now()})
	is.True(errors.Is(err, sqlmock.ErrCancelled))
}

func TestGetRecentPositionSamples(t *testing.T) {
	is := is.New(t)
	db, mock := newMockDB(t)
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("order by recorded_at desc limit $2")).
		WithArgs(int64(5), 10).
		WillReturnRows(sqlmock.NewRows(sampleColumns).
			AddRow("c", int64(5), nil, -0.3, 36.1, nil, nil, nil, 50.0, t0.Add(2*time.Minute), t0).
			AddRow("b", int64(5), nil, -0.2, 36.1, nil, nil, nil, nil, t0.Add(time.Minute), t0).
			AddRow("a", int64(5), nil, -0.1, 36.1, nil, nil, nil, nil, t0, t0))

	samples, err := GetRecentPositionSamples(context.Background(), db, 5, 10)
	is.NoErr(err)
	is.Equal(len(samples), 3)
	is.Equal(samples[0].Id, "a")
	is.Equal(samples[2].Id, "c")
	is.Equal(*samples[2].Speed, 50.0)
	is.Equal(samples[0].Speed, nil)
}

func TestGetPositionSamples(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		since     *time.Time
		wantQuery string
		wantArgs  []driver.Value
	}{
		{
			name:      "whole trip",
			wantQuery: "where trip_id = $1 order by recorded_at desc limit $2",
			wantArgs:  []driver.Value{int64(5), 200},
		},
		{
			name:      "since a time",
			since:     &t0,
			wantQuery: "where trip_id = $1 and recorded_at >= $2 order by recorded_at desc limit $3",
			wantArgs:  []driver.Value{int64(5), t0, 200},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			db, mock := newMockDB(t)
			mock.ExpectQuery(regexp.QuoteMeta(tt.wantQuery)).
				WithArgs(tt.wantArgs...).
				WillReturnRows(sqlmock.NewRows(sampleColumns).
					AddRow("b", int64(5), nil, -0.2, 36.1, nil, nil, nil, nil, t0.Add(time.Minute), t0).
					AddRow("a", int64(5), nil, -0.1, 36.1, nil, nil, nil, nil, t0, t0))

			samples, err := GetPositionSamples(context.Background(), db, 5, tt.since, 200)
			is.NoErr(err)
			is.Equal(len(samples), 2)
			is.Equal(samples[0].Id, "a")
			is.Equal(samples[1].Id, "b")
			is.NoErr(mock.ExpectationsWereMet())
		})
	}
}

func TestGetCityCoordinate(t *testing.T) {
	is := is.New(t)
	db, mock := newMockDB(t)
	mock.ExpectQuery("from city_coordinate").
		WithArgs("Nakuru").
		WillReturnRows(sqlmock.NewRows([]string{"name", "latitude", "longitude"}).AddRow("Nakuru", -0.3031, 36.08))
	mock.ExpectQuery("from city_coordinate").
		WithArgs("Atlantis").
		WillReturnRows(sqlmock.NewRows([]string{"name", "latitude", "longitude"}))

	store := MakeStore(db)
	point, found, err := store.LookupCoordinate(context.Background(), " Nakuru ")
	is.NoErr(err)
	is.True(found)
	is.Equal(point.Latitude, -0.3031)

	_, found, err = store.LookupCoordinate(context.Background(), "Atlantis")
	is.NoErr(err)
	is.True(!found)
	is.NoErr(mock.ExpectationsWereMet())
}

func TestCoordinateBook(t *testing.T) {
	is := is.New(t)
	book, err := ParseCoordinateBook([]byte(`
coordinates:
  - name: Nairobi
    latitude: -1.2921
    longitude: 36.8219
  - name: Kisumu
    latitude: -0.0917
    longitude: 34.7680
`))
	is.NoErr(err)
	is.Equal(book.Len(), 2)

	point, found, err := book.LookupCoordinate(context.Background(), "  KISUMU")
	is.NoErr(err)
	is.True(found)
	is.Equal(point.Longitude, 34.7680)

	_, found, err = book.LookupCoordinate(context.Background(), "Eldoret")
	is.NoErr(err)
	is.True(!found)
}

func TestParseCoordinateBook_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "not yaml",
			yaml: "coordinates: [",
		},
		{
			name: "missing name",
			yaml: "coordinates:\n  - latitude: 1\n    longitude: 2\n",
		},
		{
			name: "latitude out of range",
			yaml: "coordinates:\n  - name: Nowhere\n    latitude: 91\n    longitude: 2\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCoordinateBook([]byte(tt.yaml)); err == nil {
				t.Errorf("expected error parsing %q", tt.yaml)
			}
		})
	}
}
