package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	billyutil "github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	gogitfs "github.com/go-git/go-git/v5/storage/filesystem"

	"pcal/internal/calendar"
	appLog "pcal/internal/log"
)

const (
	calendarExt = ".json"
	tempPrefix  = ".pcal-"

	commitAuthor = "pcal"
	commitEmail  = "pcal@localhost"
)

// FileStore keeps one JSON file per calendar on a billy filesystem. With
// history enabled the directory is also a git repository and every change
// is committed.
type FileStore struct {
	mu   sync.Mutex
	fs   billy.Filesystem
	repo *gogit.Repository

	// now stamps commits; tests replace it.
	now func() time.Time
}

// OpenFileStore opens (creating if needed) a file store rooted at dir.
func OpenFileStore(dir string, history bool) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return NewFileStore(osfs.New(dir), history)
}

// NewFileStore wraps an existing filesystem.
func NewFileStore(fs billy.Filesystem, history bool) (*FileStore, error) {
	s := &FileStore{fs: fs, now: time.Now}
	if !history {
		return s, nil
	}
	if err := s.initRepo(); err != nil {
		return nil, fmt.Errorf("init history: %w", err)
	}
	return s, nil
}

func (s *FileStore) initRepo() error {
	if err := s.fs.MkdirAll(gogit.GitDirName, 0o755); err != nil {
		return fmt.Errorf("create .git dir: %w", err)
	}
	dotGit, err := s.fs.Chroot(gogit.GitDirName)
	if err != nil {
		return fmt.Errorf("chroot .git dir: %w", err)
	}
	storage := gogitfs.NewStorage(dotGit, cache.NewObjectLRUDefault())

	repo, err := gogit.Init(storage, s.fs)
	if errors.Is(err, gogit.ErrRepositoryAlreadyExists) {
		repo, err = gogit.Open(storage, s.fs)
	}
	if err != nil {
		return err
	}
	s.repo = repo
	return nil
}

func fileName(name string) string {
	return name + calendarExt
}

func (s *FileStore) Names() ([]string, error) {
	infos, err := s.fs.ReadDir("/")
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	var names []string
	for _, fi := range infos {
		n := fi.Name()
		if fi.IsDir() || !strings.HasSuffix(n, calendarExt) || strings.HasPrefix(n, tempPrefix) {
			continue
		}
		names = append(names, strings.TrimSuffix(n, calendarExt))
	}
	slices.Sort(names)
	return names, nil
}

func (s *FileStore) exists(name string) (bool, error) {
	_, err := s.fs.Stat(fileName(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *FileStore) Create(name string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.exists(name)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}
	return s.write(calendar.New(name), fmt.Sprintf("Create calendar '%s'", name))
}

func (s *FileStore) Delete(name string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.exists(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if s.repo == nil {
		return s.fs.Remove(fileName(name))
	}

	w, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}
	if _, err := w.Remove(fileName(name)); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
		return fmt.Errorf("unstage %s: %w", name, err)
	}
	// Untracked files are left behind by w.Remove.
	if err := s.fs.Remove(fileName(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return s.commit(w, fmt.Sprintf("Delete calendar '%s'", name))
}

func (s *FileStore) Load(name string) (*calendar.Calendar, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	data, err := billyutil.ReadFile(s.fs, fileName(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read calendar %s: %w", name, err)
	}

	var rec calendarRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode calendar %s: %w", name, err)
	}
	// The file name wins over the name stored inside.
	rec.Name = name
	return fromRecord(rec)
}

func (s *FileStore) Save(cal *calendar.Calendar) error {
	if err := ValidName(cal.Name()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(cal, fmt.Sprintf("Save calendar '%s' (%d events)", cal.Name(), cal.Len()))
}

// write replaces the calendar file atomically: temp file + rename.
func (s *FileStore) write(cal *calendar.Calendar, message string) error {
	data, err := json.MarshalIndent(toRecord(cal), "", "  ")
	if err != nil {
		return fmt.Errorf("encode calendar %s: %w", cal.Name(), err)
	}
	data = append(data, '\n')

	tmp, err := s.fs.TempFile("", tempPrefix)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.fs.Rename(tmpName, fileName(cal.Name())); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("replace calendar %s: %w", cal.Name(), err)
	}
	appLog.Debug("calendar written", "calendar", cal.Name(), "events", cal.Len(), "bytes", len(data))

	if s.repo == nil {
		return nil
	}
	w, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}
	if _, err := w.Add(fileName(cal.Name())); err != nil {
		return fmt.Errorf("stage %s: %w", cal.Name(), err)
	}
	return s.commit(w, message)
}

func (s *FileStore) commit(w *gogit.Worktree, message string) error {
	hash, err := w.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  commitAuthor,
			Email: commitEmail,
			When:  s.now(),
		},
	})
	if errors.Is(err, gogit.ErrEmptyCommit) {
		// nothing changed
		return nil
	}
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	appLog.Debug("history committed", "commit", hash.String()[:7], "message", message)
	return nil
}

// History lists the commits that touched a calendar, newest first. It is
// empty when history is disabled.
func (s *FileStore) History(name string) ([]Revision, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	if s.repo == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file := path.Clean(fileName(name))
	iter, err := s.repo.Log(&gogit.LogOptions{FileName: &file})
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer iter.Close()

	var revs []Revision
	err = iter.ForEach(func(c *object.Commit) error {
		revs = append(revs, Revision{
			Hash:    c.Hash.String(),
			When:    c.Author.When,
			Message: strings.TrimSpace(c.Message),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return revs, nil
}

func (s *FileStore) Close() error {
	return nil
}
