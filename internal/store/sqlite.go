package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pcal/internal/calendar"
	appLog "pcal/internal/log"
)

const (
	schemaName    = "pcal"
	schemaVersion = 2
)

// SQLiteStore keeps all calendars in one SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at path and brings its schema up to date.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM db_version WHERE name = ?", schemaName).Scan(&version)
	if err != nil {
		_, err = s.db.Exec(`CREATE TABLE IF NOT EXISTS db_version (
			name TEXT PRIMARY KEY,
			version INTEGER
		)`)
		if err != nil {
			return fmt.Errorf("create db_version table: %w", err)
		}
		_, err = s.db.Exec("INSERT OR IGNORE INTO db_version (name, version) VALUES (?, 0)", schemaName)
		if err != nil {
			return fmt.Errorf("initialize db_version table: %w", err)
		}
		version = 0
	}

	if version == 0 {
		_, err = s.db.Exec(`CREATE TABLE IF NOT EXISTS calendars (
			name TEXT PRIMARY KEY,
			created_at TEXT NOT NULL
		)`)
		if err != nil {
			return fmt.Errorf("create calendars table: %w", err)
		}

		_, err = s.db.Exec(`CREATE TABLE IF NOT EXISTS events (
			calendar TEXT NOT NULL,
			position INTEGER NOT NULL,
			id TEXT NOT NULL,
			title TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			start_at TEXT NOT NULL,
			end_at TEXT NOT NULL,
			freq TEXT,
			interval INTEGER,
			count INTEGER,
			until_at TEXT,
			PRIMARY KEY (calendar, id)
		)`)
		if err != nil {
			return fmt.Errorf("create events table: %w", err)
		}

		if err := s.setVersion(1); err != nil {
			return err
		}
		appLog.Info("database schema created", "version", 1)
		version = 1
	}

	if version == 1 {
		_, err = s.db.Exec("ALTER TABLE events ADD COLUMN description TEXT NOT NULL DEFAULT ''")
		if err != nil {
			return fmt.Errorf("add events.description: %w", err)
		}
		if err := s.setVersion(schemaVersion); err != nil {
			return err
		}
		appLog.Info("database schema migrated", "version", schemaVersion)
	}
	return nil
}

func (s *SQLiteStore) setVersion(v int) error {
	_, err := s.db.Exec("UPDATE db_version SET version = ? WHERE name = ?", v, schemaName)
	if err != nil {
		return fmt.Errorf("update db_version: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Names() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM calendars ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) Create(name string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	res, err := s.db.Exec("INSERT OR IGNORE INTO calendars (name, created_at) VALUES (?, ?)",
		name, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("create calendar %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}
	return nil
}

func (s *SQLiteStore) Delete(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM calendars WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete calendar %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if _, err := tx.Exec("DELETE FROM events WHERE calendar = ?", name); err != nil {
		return fmt.Errorf("delete events of %s: %w", name, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Load(name string) (*calendar.Calendar, error) {
	var created string
	err := s.db.QueryRow("SELECT created_at FROM calendars WHERE name = ?", name).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load calendar %s: %w", name, err)
	}

	rows, err := s.db.Query(`SELECT id, title, location, description, start_at, end_at, freq, interval, count, until_at
		FROM events WHERE calendar = ? ORDER BY position`, name)
	if err != nil {
		return nil, fmt.Errorf("load events of %s: %w", name, err)
	}
	defer rows.Close()

	rec := calendarRecord{Version: formatVersion, Name: name}
	for rows.Next() {
		var (
			r        eventRecord
			freq     sql.NullString
			interval sql.NullInt64
			count    sql.NullInt64
			until    sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.Location, &r.Description, &r.Start, &r.End, &freq, &interval, &count, &until); err != nil {
			return nil, err
		}
		if freq.Valid {
			r.Recurrence = &recurrenceRecord{
				Frequency: freq.String,
				Interval:  int(interval.Int64),
				Count:     int(count.Int64),
				Until:     until.String,
			}
		}
		rec.Events = append(rec.Events, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// Save rewrites the calendar's events in one transaction.
func (s *SQLiteStore) Save(cal *calendar.Calendar) error {
	if err := ValidName(cal.Name()); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec("INSERT OR IGNORE INTO calendars (name, created_at) VALUES (?, ?)",
		cal.Name(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save calendar %s: %w", cal.Name(), err)
	}
	if _, err := tx.Exec("DELETE FROM events WHERE calendar = ?", cal.Name()); err != nil {
		return fmt.Errorf("clear events of %s: %w", cal.Name(), err)
	}

	stmt, err := tx.Prepare(`INSERT INTO events
		(calendar, position, id, title, location, description, start_at, end_at, freq, interval, count, until_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range toRecord(cal).Events {
		var freq, until sql.NullString
		var interval, count sql.NullInt64
		if rr := r.Recurrence; rr != nil {
			freq = sql.NullString{String: rr.Frequency, Valid: true}
			interval = sql.NullInt64{Int64: int64(rr.Interval), Valid: true}
			count = sql.NullInt64{Int64: int64(rr.Count), Valid: true}
			until = sql.NullString{String: rr.Until, Valid: rr.Until != ""}
		}
		_, err := stmt.Exec(cal.Name(), i, r.ID, r.Title, r.Location, r.Description, r.Start, r.End, freq, interval, count, until)
		if err != nil {
			return fmt.Errorf("save event %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	appLog.Debug("calendar saved", "calendar", cal.Name(), "events", cal.Len())
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
