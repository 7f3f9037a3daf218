// Package shelf keeps track of followed stories and chapters already read.
package shelf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/maruel/natural"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

var (
	// ErrNotFound is returned when story is not on the shelf.
	ErrNotFound = errors.New("story is not on the shelf")
	// ErrNoBookshelf is returned when named bookshelf does not exist.
	ErrNoBookshelf = errors.New("bookshelf does not exist")
)

const schema = `
CREATE TABLE IF NOT EXISTS stories (
	id        INTEGER PRIMARY KEY,
	handle    TEXT NOT NULL UNIQUE COLLATE NOCASE,
	title     TEXT NOT NULL DEFAULT '',
	last_read INTEGER NOT NULL DEFAULT 0 CHECK (last_read >= 0)
);
CREATE TABLE IF NOT EXISTS bookshelves (
	name TEXT PRIMARY KEY COLLATE NOCASE
);
CREATE TABLE IF NOT EXISTS bookshelf_stories (
	bookshelf TEXT NOT NULL COLLATE NOCASE REFERENCES bookshelves (name) ON DELETE CASCADE,
	story_id  INTEGER NOT NULL REFERENCES stories (id) ON DELETE CASCADE,
	PRIMARY KEY (bookshelf, story_id)
);
`

const selectStory = `SELECT id, handle, title, last_read FROM stories`

// Story is a followed publication. LastRead is 1-based number of the last
// chapter read, 0 when nothing has been read yet.
type Story struct {
	ID       int
	Handle   string
	Title    string
	LastRead int
}

func (s Story) String() string {
	return fmt.Sprintf("%s<%s>: id=%d;last_read=%d", s.Title, s.Handle, s.ID, s.LastRead)
}

// NewStory prepares shelf entry for publication with total chapters. Negative
// lastRead counts from the end, -1 marks every chapter as read. Empty handle
// defaults to story id.
func NewStory(id int, handle, title string, lastRead, total int) Story {
	if lastRead < 0 {
		lastRead = max(lastRead+total+1, 0)
	}
	if len(handle) == 0 {
		handle = strconv.Itoa(id)
	}
	return Story{ID: id, Handle: handle, Title: title, LastRead: lastRead}
}

// Store is story database. It is safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	conn *sqlite.Conn
	log  *zap.Logger
}

// Open opens (creating when necessary) story database at path.
func Open(path string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("unable to create shelf directory: %w", err)
	}
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite, sqlite.OpenCreate, sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("unable to open shelf (%s): %w", path, err)
	}
	// has no effect inside transaction, schema script runs in one
	if err := sqlitex.ExecuteTransient(conn, "PRAGMA foreign_keys = ON;", nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to prepare shelf (%s): %w", path, err)
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to prepare shelf (%s): %w", path, err)
	}
	log = log.Named("shelf")
	log.Debug("Shelf opened", zap.String("path", path))
	return &Store{conn: conn, log: log}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Add puts story on the shelf replacing previous entry with the same id.
func (s *Store) Add(story Story) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := sqlitex.Execute(s.conn,
		`INSERT INTO stories (id, handle, title, last_read) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET handle = excluded.handle, title = excluded.title, last_read = excluded.last_read`,
		&sqlitex.ExecOptions{Args: []any{story.ID, story.Handle, story.Title, story.LastRead}})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintUnique {
			return fmt.Errorf("handle %q is already used by another story", story.Handle)
		}
		return fmt.Errorf("unable to add story %d: %w", story.ID, err)
	}
	s.log.Debug("Story added", zap.Stringer("story", story))
	return nil
}

// Get looks story up by id, then by handle, then by title. Handles and
// titles are compared case-insensitively.
func (s *Store) Get(identifier string) (Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, err := strconv.Atoi(identifier); err == nil {
		if story, err := s.queryOne(selectStory+` WHERE id = ?`, id); !errors.Is(err, ErrNotFound) {
			return story, err
		}
	}
	if story, err := s.queryOne(selectStory+` WHERE handle = ?`, identifier); !errors.Is(err, ErrNotFound) {
		return story, err
	}
	return s.queryOne(selectStory+` WHERE title = ? COLLATE NOCASE ORDER BY id LIMIT 1`, identifier)
}

// Resolve returns story from the shelf. Numeric identifiers of stories which
// are not tracked produce new untracked entry, tracked reports which one it
// is.
func (s *Store) Resolve(identifier string) (story Story, tracked bool, err error) {
	story, err = s.Get(identifier)
	if err == nil {
		return story, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Story{}, false, err
	}
	id, cerr := strconv.Atoi(identifier)
	if cerr != nil || id <= 0 {
		return Story{}, false, fmt.Errorf("story %q is not tracked, story id must be used: %w", identifier, ErrNotFound)
	}
	return Story{ID: id, Handle: identifier}, false, nil
}

// List returns all stories in natural title order.
func (s *Store) List() ([]Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stories, err := s.query(selectStory)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(stories, func(a, b Story) int { return naturalCompare(a.Title, b.Title) })
	return stories, nil
}

func naturalCompare(a, b string) int {
	switch {
	case natural.Less(a, b):
		return -1
	case natural.Less(b, a):
		return 1
	}
	return 0
}

// Remove takes story off the shelf.
func (s *Store) Remove(id int) error {
	return s.update(id, `DELETE FROM stories WHERE id = ?`, id)
}

// SetLastRead records 1-based number of the last chapter read.
func (s *Store) SetLastRead(id, lastRead int) error {
	if lastRead < 0 {
		return fmt.Errorf("negative last read chapter %d", lastRead)
	}
	return s.update(id, `UPDATE stories SET last_read = ? WHERE id = ?`, lastRead, id)
}

func (s *Store) update(id int, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := sqlitex.Execute(s.conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		return fmt.Errorf("unable to update story %d: %w", id, err)
	}
	if s.conn.Changes() == 0 {
		return fmt.Errorf("story %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) queryOne(query string, args ...any) (Story, error) {
	stories, err := s.query(query, args...)
	if err != nil {
		return Story{}, err
	}
	if len(stories) == 0 {
		return Story{}, ErrNotFound
	}
	return stories[0], nil
}

func (s *Store) query(query string, args ...any) ([]Story, error) {
	var stories []Story
	err := sqlitex.Execute(s.conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			stories = append(stories, Story{
				ID:       stmt.ColumnInt(0),
				Handle:   stmt.ColumnText(1),
				Title:    stmt.ColumnText(2),
				LastRead: stmt.ColumnInt(3),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to read shelf: %w", err)
	}
	return stories, nil
}
