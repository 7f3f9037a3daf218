package shelf

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Bookshelves group stories which are fetched together. Story could be on
// any number of bookshelves, taking it off the shelf removes it from all of
// them. Names are case-insensitive.

// CreateBookshelf adds empty bookshelf. It reports false when bookshelf
// already exists.
func (s *Store) CreateBookshelf(name string) (bool, error) {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return false, errors.New("empty bookshelf name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := sqlitex.Execute(s.conn, `INSERT INTO bookshelves (name) VALUES (?) ON CONFLICT DO NOTHING`,
		&sqlitex.ExecOptions{Args: []any{name}})
	if err != nil {
		return false, fmt.Errorf("unable to create bookshelf %q: %w", name, err)
	}
	created := s.conn.Changes() > 0
	if created {
		s.log.Debug("Bookshelf created", zap.String("name", name))
	}
	return created, nil
}

// DeleteBookshelf removes bookshelf, its stories stay on the shelf.
func (s *Store) DeleteBookshelf(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := sqlitex.Execute(s.conn, `DELETE FROM bookshelves WHERE name = ?`, &sqlitex.ExecOptions{Args: []any{name}}); err != nil {
		return fmt.Errorf("unable to delete bookshelf %q: %w", name, err)
	}
	if s.conn.Changes() == 0 {
		return fmt.Errorf("%q: %w", name, ErrNoBookshelf)
	}
	return nil
}

// Bookshelves returns names of all bookshelves in natural order.
func (s *Store) Bookshelves() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	err := sqlitex.Execute(s.conn, `SELECT name FROM bookshelves`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			names = append(names, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to read bookshelves: %w", err)
	}
	slices.SortFunc(names, naturalCompare)
	return names, nil
}

// ShelveStory puts story on bookshelf. It reports false when story is
// already there.
func (s *Store) ShelveStory(name string, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := s.bookshelf(name)
	if err != nil {
		return false, err
	}
	if _, err := s.queryOne(selectStory+` WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("story %d: %w", id, err)
	}
	err = sqlitex.Execute(s.conn, `INSERT INTO bookshelf_stories (bookshelf, story_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		&sqlitex.ExecOptions{Args: []any{name, id}})
	if err != nil {
		return false, fmt.Errorf("unable to put story %d on bookshelf %q: %w", id, name, err)
	}
	return s.conn.Changes() > 0, nil
}

// UnshelveStory takes story off bookshelf. It reports false when story was
// not there.
func (s *Store) UnshelveStory(name string, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := s.bookshelf(name)
	if err != nil {
		return false, err
	}
	err = sqlitex.Execute(s.conn, `DELETE FROM bookshelf_stories WHERE bookshelf = ? AND story_id = ?`,
		&sqlitex.ExecOptions{Args: []any{name, id}})
	if err != nil {
		return false, fmt.Errorf("unable to take story %d off bookshelf %q: %w", id, name, err)
	}
	return s.conn.Changes() > 0, nil
}

// BookshelfStories returns stories on bookshelf ordered by handle.
func (s *Store) BookshelfStories(name string) ([]Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := s.bookshelf(name)
	if err != nil {
		return nil, err
	}
	stories, err := s.query(`SELECT s.id, s.handle, s.title, s.last_read FROM stories s
		JOIN bookshelf_stories b ON b.story_id = s.id
		WHERE b.bookshelf = ?`, name)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(stories, func(a, b Story) int {
		return naturalCompare(strings.ToLower(a.Handle), strings.ToLower(b.Handle))
	})
	return stories, nil
}

// bookshelf returns stored name of bookshelf. Caller holds the lock.
func (s *Store) bookshelf(name string) (string, error) {
	var stored string
	err := sqlitex.Execute(s.conn, `SELECT name FROM bookshelves WHERE name = ?`, &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			stored = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("unable to read bookshelves: %w", err)
	}
	if len(stored) == 0 {
		return "", fmt.Errorf("%q: %w", name, ErrNoBookshelf)
	}
	return stored, nil
}
