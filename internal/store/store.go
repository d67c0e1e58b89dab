// Package store persists calendars. A calendar is loaded whole, mutated in
// memory by one command and saved back whole.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"pcal/internal/calendar"
)

var (
	ErrNotFound = errors.New("calendar not found")
	ErrExists   = errors.New("calendar already exists")
)

// Store is implemented by FileStore and SQLiteStore.
type Store interface {
	// Names lists the stored calendars, sorted.
	Names() ([]string, error)
	Create(name string) error
	Delete(name string) error
	Load(name string) (*calendar.Calendar, error)
	// Save replaces the stored copy of cal, creating it if needed.
	Save(cal *calendar.Calendar) error
	Close() error
}

// Revision is one entry of a calendar's change history.
type Revision struct {
	Hash    string
	When    time.Time
	Message string
}

// Historian is implemented by stores that keep a change history.
type Historian interface {
	History(name string) ([]Revision, error)
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"

	sqliteFile = "pcal.db"
)

type Options struct {
	Backend string
	Dir     string
	// History commits every file store change to a git repository in Dir.
	History bool
}

// Open returns the backend selected by opts.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendFile, "":
		return OpenFileStore(opts.Dir, opts.History)
	case BackendSQLite:
		if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return OpenSQLite(filepath.Join(opts.Dir, sqliteFile))
	default:
		return nil, fmt.Errorf("unknown store backend %q (want %s or %s)", opts.Backend, BackendFile, BackendSQLite)
	}
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidName reports whether name can be used for a calendar.
func ValidName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid calendar name %q: use letters, digits, '.', '_' or '-'", name)
	}
	return nil
}
