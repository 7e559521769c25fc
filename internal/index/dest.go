package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/schema"
)

var _ contract.Destination = &Store{} // Compile-time check

// Start implements the Destination interface. The run is written in one
// transaction that Flush commits at safe points.
func (s *Store) Start(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, s.stmt(`SELECT name FROM {branch}`))
	if err != nil {
		return fmt.Errorf("%w: load branches: %v", contract.ErrDestination, err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return fmt.Errorf("%w: load branches: %v", contract.ErrDestination, err)
		}
		s.branches[name] = true
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: load branches: %v", contract.ErrDestination, err)
	}

	s.tx, err = s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", contract.ErrDestination, err)
	}
	return nil
}

// LastWatermark implements the Destination interface.
func (s *Store) LastWatermark() (time.Time, error) {
	if s.db == nil {
		return time.Time{}, nil
	}
	var last sql.NullInt64
	if err := s.q().QueryRow(s.stmt(`SELECT MAX(date) FROM {changeset}`)).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("%w: read watermark: %v", contract.ErrDestination, err)
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return time.Unix(last.Int64, 0).UTC(), nil
}

// FileList implements the Destination interface. The index keeps no trees.
func (s *Store) FileList(string) ([]string, error) {
	return nil, nil
}

// HasBranch implements the Destination interface.
func (s *Store) HasBranch(name string) bool {
	return name == schema.TrunkBranch || s.branches[name]
}

// CreateBranch implements the Destination interface.
func (s *Store) CreateBranch(name, parent string, vendor bool, at time.Time) error {
	if s.HasBranch(name) {
		return fmt.Errorf("%w: %s", contract.ErrBranchExists, name)
	}
	s.branches[name] = true
	if s.db == nil {
		return nil
	}
	v := 0
	if vendor {
		v = 1
	}
	_, err := s.q().Exec(s.stmt(`INSERT INTO {branch} (name, parent, vendor, created) VALUES (?, ?, ?, ?)`),
		name, parent, v, at.Unix())
	if err != nil {
		return fmt.Errorf("%w: record branch %s: %v", contract.ErrDestination, name, err)
	}
	return nil
}

// SelectBranch implements the Destination interface.
func (s *Store) SelectBranch(name string) error {
	s.current = name
	return nil
}

// Update implements the Destination interface. Content is not indexed.
func (s *Store) Update(string, *schema.FileContent, *schema.RevisionRecord) error {
	return nil
}

// Remove implements the Destination interface.
func (s *Store) Remove(string, *schema.RevisionRecord) error {
	return nil
}

// Commit implements the Destination interface. Each changeset becomes one
// row; synthetic branch fixups are not recorded.
func (s *Store) Commit(req schema.CommitRequest) (string, error) {
	if s.db == nil || req.Author == schema.FixupAuthor {
		return "", nil
	}
	id, err := s.insertChangeset(req)
	if err != nil {
		return "", fmt.Errorf("%w: record changeset: %v", contract.ErrDestination, err)
	}
	for _, rev := range req.Revisions {
		fileID, err := s.fileID(rev.File)
		if err != nil {
			return "", fmt.Errorf("%w: record file %s: %v", contract.ErrDestination, rev.File, err)
		}
		next := rev.Link
		if next == "" {
			next = rev.Next
		}
		_, err = s.q().Exec(s.stmt(`INSERT INTO {revision} (file_id, revision, next_revision, changeset_id) VALUES (?, ?, ?, ?)`),
			fileID, rev.Rev, nullString(next), id)
		if err != nil {
			return "", fmt.Errorf("%w: record %s:%s: %v", contract.ErrDestination, rev.File, rev.Rev, err)
		}
	}
	return strconv.FormatInt(id, 10), nil
}

// Merge implements the Destination interface. Merges carry no new revisions.
func (s *Store) Merge(parentID string, _ schema.CommitRequest) (string, error) {
	if !s.HasBranch(s.current) {
		return "", fmt.Errorf("%w: branch %s was never created", contract.ErrUnexpectedParent, s.current)
	}
	return parentID, nil
}

// Flush implements the Destination interface.
func (s *Store) Flush() error {
	if s.tx == nil {
		return nil
	}
	if err := s.tx.Commit(); err != nil {
		s.tx = nil
		return fmt.Errorf("%w: commit: %v", contract.ErrDestination, err)
	}
	tx, err := s.db.Begin()
	s.tx = tx
	if err != nil {
		return fmt.Errorf("%w: begin: %v", contract.ErrDestination, err)
	}
	return nil
}

// Finish implements the Destination interface.
func (s *Store) Finish() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("%w: commit: %v", contract.ErrDestination, err)
	}
	return nil
}

func (s *Store) insertChangeset(req schema.CommitRequest) (int64, error) {
	args := []any{s.current, req.Author, req.Date.Unix()}
	if s.backend == schema.PostgreSQLBackend {
		var id int64
		err := s.q().QueryRow(s.stmt(`INSERT INTO {changeset} (branch, author, date) VALUES (?, ?, ?) RETURNING id`), args...).Scan(&id)
		return id, err
	}
	res, err := s.q().Exec(s.stmt(`INSERT INTO {changeset} (branch, author, date) VALUES (?, ?, ?)`), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// fileID returns the id of a path, inserting the file row on first use.
func (s *Store) fileID(path string) (int64, error) {
	if id, ok := s.fileIDs[path]; ok {
		return id, nil
	}
	var id int64
	err := s.q().QueryRow(s.stmt(`SELECT id FROM {file} WHERE path = ?`), path).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if s.backend == schema.PostgreSQLBackend {
			err = s.q().QueryRow(s.stmt(`INSERT INTO {file} (path) VALUES (?) RETURNING id`), path).Scan(&id)
		} else {
			var res sql.Result
			res, err = s.q().Exec(s.stmt(`INSERT INTO {file} (path) VALUES (?)`), path)
			if err == nil {
				id, err = res.LastInsertId()
			}
		}
		if err != nil {
			return 0, err
		}
	case err != nil:
		return 0, err
	}
	s.fileIDs[path] = id
	return id, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
