// Package replay records the raw measurement stream to a local SQLite
// database for offline replay or demo purposes. It persists only the raw
// stream, never tracker or filter state — consistent with the core's
// no-persistence non-goal, since nothing here feeds back into a live
// estimator.
package replay

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/fusion.report/internal/track"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store records measurements to, and replays them from, a SQLite
// database. Covariance is stored as its diagonal only — off-diagonal
// terms are not meaningful for any of the sensor producers this system
// ships with, and dropping them keeps the schema flat.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the SQLite database at path and runs
// any pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("replay: open %s: %w", path, err)
	}

	if err := migrateSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// DB returns the store's underlying database handle, for callers that need
// to mount admin or debugging routes against it directly (see
// output.PushServer.SetReplayStore).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the filesystem path the store was opened against.
func (s *Store) Path() string {
	return s.path
}

func migrateSchema(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("replay: load migrations: %w", err)
	}

	dbDriver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("replay: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		return fmt.Errorf("replay: migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("replay: migrate up: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record persists m.
func (s *Store) Record(m track.Measurement) error {
	var vx, vy, vz float64
	var velCovX, velCovY, velCovZ float64
	if m.HasVelocity {
		vx, vy, vz = m.Velocity.VX, m.Velocity.VY, m.Velocity.VZ
		if m.VelocityCovariance != nil {
			velCovX, velCovY, velCovZ = m.VelocityCovariance.At(0, 0), m.VelocityCovariance.At(1, 1), m.VelocityCovariance.At(2, 2)
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO measurements (
			entity_id, sensor_kind, timestamp_unix_nanos,
			pos_x, pos_y, pos_z,
			has_velocity, vel_vx, vel_vy, vel_vz,
			pos_cov_diag_x, pos_cov_diag_y, pos_cov_diag_z,
			vel_cov_diag_x, vel_cov_diag_y, vel_cov_diag_z,
			confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.EntityID, m.SensorKind.String(), m.Timestamp.UnixNano(),
		m.Position.X, m.Position.Y, m.Position.Z,
		m.HasVelocity, vx, vy, vz,
		m.PositionCovariance.At(0, 0), m.PositionCovariance.At(1, 1), m.PositionCovariance.At(2, 2),
		velCovX, velCovY, velCovZ,
		m.Confidence,
	)
	if err != nil {
		return fmt.Errorf("replay: record measurement: %w", err)
	}
	return nil
}

// Replay reads every recorded measurement in timestamp order and invokes
// cb for each one, sleeping between deliveries to reproduce the original
// inter-arrival gaps scaled by speedFactor (1.0 = original pace). It
// returns when the context is canceled or every row has been delivered.
func (s *Store) Replay(ctx context.Context, speedFactor float64, cb func(track.Measurement)) error {
	if speedFactor <= 0 {
		speedFactor = 1.0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, sensor_kind, timestamp_unix_nanos,
			pos_x, pos_y, pos_z,
			has_velocity, vel_vx, vel_vy, vel_vz,
			pos_cov_diag_x, pos_cov_diag_y, pos_cov_diag_z,
			vel_cov_diag_x, vel_cov_diag_y, vel_cov_diag_z,
			confidence
		FROM measurements ORDER BY timestamp_unix_nanos ASC`)
	if err != nil {
		return fmt.Errorf("replay: query: %w", err)
	}
	defer rows.Close()

	var lastTS int64
	first := true

	for rows.Next() {
		var (
			entityID           uint64
			sensorKind         string
			ts                 int64
			posX, posY, posZ   float64
			hasVelocity        bool
			velVX, velVY, velVZ float64
			posCovX, posCovY, posCovZ float64
			velCovX, velCovY, velCovZ float64
			confidence         float64
		)
		if err := rows.Scan(&entityID, &sensorKind, &ts, &posX, &posY, &posZ,
			&hasVelocity, &velVX, &velVY, &velVZ,
			&posCovX, &posCovY, &posCovZ,
			&velCovX, &velCovY, &velCovZ,
			&confidence); err != nil {
			return fmt.Errorf("replay: scan: %w", err)
		}

		if !first {
			gap := time.Duration(ts-lastTS) * time.Nanosecond
			if gap > 0 {
				select {
				case <-time.After(time.Duration(float64(gap) / speedFactor)):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		first = false
		lastTS = ts

		m := track.Measurement{
			EntityID:           entityID,
			SensorKind:         track.SensorKind(sensorKind),
			Timestamp:          time.Unix(0, ts),
			Position:           track.Position{X: posX, Y: posY, Z: posZ},
			HasVelocity:        hasVelocity,
			PositionCovariance: track.DiagCovariance3(posCovX, posCovY, posCovZ),
			Confidence:         confidence,
		}
		if hasVelocity {
			m.Velocity = track.Velocity{VX: velVX, VY: velVY, VZ: velVZ}
			m.VelocityCovariance = track.DiagCovariance3(velCovX, velCovY, velCovZ)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		cb(m)
	}

	return rows.Err()
}
