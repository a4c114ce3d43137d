package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"krishi/internal/types"
)

// ReadingSchema creates the archive table. Readings are keyed by device and
// payload timestamp, so re-sending a batch after a partial failure is safe.
const ReadingSchema = `
CREATE TABLE IF NOT EXISTS sensor_readings (
	device_id     TEXT        NOT NULL,
	recorded_at   TIMESTAMPTZ NOT NULL,
	moisture_pct  DOUBLE PRECISION NOT NULL,
	temperature_c DOUBLE PRECISION NOT NULL,
	humidity_pct  DOUBLE PRECISION,
	battery_pct   DOUBLE PRECISION,
	archived_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (device_id, recorded_at)
)`

// ReadingRepository archives accepted sensor readings in PostgreSQL.
type ReadingRepository struct {
	db DBTX
}

// NewReadingRepository creates a ReadingRepository.
func NewReadingRepository(db DBTX) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// EnsureSchema creates the archive table if it does not exist.
func (r *ReadingRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, ReadingSchema); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create sensor_readings table", err)
	}
	return nil
}

// InsertBatch writes readings in a single statement and returns the number of
// new rows. Rows already archived are skipped.
func (r *ReadingRepository) InsertBatch(ctx context.Context, readings []types.SensorReading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	n := len(readings)
	deviceIDs := make([]string, n)
	recordedAt := make([]time.Time, n)
	moisture := make([]float64, n)
	temperature := make([]float64, n)
	humidity := make([]*float64, n)
	battery := make([]*float64, n)
	for i, rd := range readings {
		deviceIDs[i] = rd.DeviceID
		recordedAt[i] = rd.Timestamp.UTC()
		moisture[i] = rd.MoisturePct
		temperature[i] = rd.TemperatureC
		humidity[i] = rd.HumidityPct
		battery[i] = rd.BatteryPct
	}

	tag, err := r.db.Exec(ctx,
		`INSERT INTO sensor_readings
		 (device_id, recorded_at, moisture_pct, temperature_c, humidity_pct, battery_pct)
		 SELECT * FROM unnest($1::text[], $2::timestamptz[], $3::float8[], $4::float8[], $5::float8[], $6::float8[])
		 ON CONFLICT (device_id, recorded_at) DO NOTHING`,
		deviceIDs, recordedAt, moisture, temperature, humidity, battery,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to archive sensor readings", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListRecent returns a device's newest archived readings, newest first.
func (r *ReadingRepository) ListRecent(ctx context.Context, deviceID string, limit int) ([]types.SensorReading, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT device_id, recorded_at, moisture_pct, temperature_c, humidity_pct, battery_pct
		 FROM sensor_readings
		 WHERE device_id = $1
		 ORDER BY recorded_at DESC
		 LIMIT $2`,
		deviceID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query sensor readings", err)
	}
	defer rows.Close()

	out := make([]types.SensorReading, 0, limit)
	for rows.Next() {
		var rd types.SensorReading
		if err := rows.Scan(&rd.DeviceID, &rd.Timestamp, &rd.MoisturePct, &rd.TemperatureC, &rd.HumidityPct, &rd.BatteryPct); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan sensor reading", err)
		}
		rd.Source = types.SourceCached
		out = append(out, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate sensor readings", err)
	}
	return out, nil
}

// LatestPerDevice returns the newest archived reading for each device. It is
// used to warm the sensor cache after a restart.
func (r *ReadingRepository) LatestPerDevice(ctx context.Context) ([]types.SensorReading, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT ON (device_id)
		        device_id, recorded_at, moisture_pct, temperature_c, humidity_pct, battery_pct
		 FROM sensor_readings
		 ORDER BY device_id, recorded_at DESC`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query latest readings", err)
	}
	readings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.SensorReading, error) {
		var rd types.SensorReading
		err := row.Scan(&rd.DeviceID, &rd.Timestamp, &rd.MoisturePct, &rd.TemperatureC, &rd.HumidityPct, &rd.BatteryPct)
		rd.Source = types.SourceCached
		return rd, err
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan latest readings", err)
	}
	return readings, nil
}
