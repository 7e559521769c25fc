package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seanfarley/fromcvs/schema"
)

// LookupChangeset returns the changeset a file revision belongs to.
func (s *Store) LookupChangeset(path, rev string) (*schema.ChangesetRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("%w: %s:%s", ErrNotFound, path, rev)
	}
	var id int64
	err := s.q().QueryRow(s.stmt(`SELECT r.changeset_id FROM {revision} r
		JOIN {file} f ON f.id = r.file_id
		WHERE f.path = ? AND r.revision = ?`), path, rev).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s:%s", ErrNotFound, path, rev)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s:%s: %w", path, rev, err)
	}

	var cs schema.ChangesetRecord
	var date int64
	err = s.q().QueryRow(s.stmt(`SELECT id, branch, author, date FROM {changeset} WHERE id = ?`), id).
		Scan(&cs.ID, &cs.Branch, &cs.Author, &date)
	if err != nil {
		return nil, fmt.Errorf("failed to read changeset %d: %w", id, err)
	}
	cs.Date = time.Unix(date, 0).UTC()
	if cs.Members, err = s.members(id); err != nil {
		return nil, err
	}
	return &cs, nil
}

// ListChangesets returns indexed changesets in replay order with their
// members. A positive limit keeps only the first limit changesets.
func (s *Store) ListChangesets(limit int) ([]schema.ChangesetRecord, error) {
	if s.db == nil {
		return nil, nil
	}
	query := `SELECT id, branch, author, date FROM {changeset} ORDER BY id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.q().Query(s.stmt(query))
	if err != nil {
		return nil, fmt.Errorf("failed to query changesets: %w", err)
	}

	var results []schema.ChangesetRecord
	for rows.Next() {
		var cs schema.ChangesetRecord
		var date int64
		if err := rows.Scan(&cs.ID, &cs.Branch, &cs.Author, &date); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan changeset: %w", err)
		}
		cs.Date = time.Unix(date, 0).UTC()
		results = append(results, cs)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating changesets: %w", err)
	}

	// Members are read after the cursor is closed; SQLite runs on a single connection.
	for i := range results {
		if results[i].Members, err = s.members(results[i].ID); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// AllRevisions returns every indexed revision ordered by changeset and path.
func (s *Store) AllRevisions() ([]schema.RevisionRow, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.q().Query(s.stmt(`SELECT r.changeset_id, f.path, r.revision, r.next_revision
		FROM {revision} r JOIN {file} f ON f.id = r.file_id
		ORDER BY r.changeset_id, f.path`))
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.RevisionRow
	for rows.Next() {
		var row schema.RevisionRow
		var next sql.NullString
		if err := rows.Scan(&row.ChangesetID, &row.Path, &row.Revision, &next); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		row.NextRevision = next.String
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revisions: %w", err)
	}
	return results, nil
}

// Branches returns the recorded branches ordered by name.
func (s *Store) Branches() ([]schema.BranchRecord, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.q().Query(s.stmt(`SELECT name, parent, vendor, created FROM {branch} ORDER BY name`))
	if err != nil {
		return nil, fmt.Errorf("failed to query branches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.BranchRecord
	for rows.Next() {
		var b schema.BranchRecord
		var vendor int
		var created int64
		if err := rows.Scan(&b.Name, &b.Parent, &vendor, &created); err != nil {
			return nil, fmt.Errorf("failed to scan branch: %w", err)
		}
		b.Vendor = vendor != 0
		b.Created = time.Unix(created, 0).UTC()
		results = append(results, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating branches: %w", err)
	}
	return results, nil
}

// GetStatus returns status information about the index.
func (s *Store) GetStatus() (schema.IndexStatus, error) {
	status := schema.IndexStatus{
		Backend:    string(s.backend),
		Connected:  s.db != nil,
		TableSizes: make(map[string]int64),
	}
	if s.db == nil {
		return status, nil
	}
	status.Database = s.database()

	var err error
	if status.SourceRoot, err = s.SourceRoot(); err != nil {
		return status, err
	}
	if status.Modules, err = s.Modules(); err != nil {
		return status, err
	}

	for _, table := range []string{changesetTable, fileTable, revisionTable, branchTable} {
		var count int64
		if err := s.q().QueryRow(s.stmt("SELECT COUNT(*) FROM {" + table + "}")).Scan(&count); err != nil {
			return status, fmt.Errorf("failed to get count for table %s: %w", table, err)
		}
		status.TableSizes[table] = count
	}
	status.TotalChangesets = status.TableSizes[changesetTable]
	if status.TotalChangesets == 0 {
		return status, nil
	}

	var oldest, last int64
	if err := s.q().QueryRow(s.stmt(`SELECT MIN(date), MAX(date) FROM {changeset}`)).Scan(&oldest, &last); err != nil {
		return status, fmt.Errorf("failed to get changeset dates: %w", err)
	}
	status.OldestChangeset = time.Unix(oldest, 0).UTC()
	status.LastChangeset = time.Unix(last, 0).UTC()
	return status, nil
}

func (s *Store) members(id int64) ([]schema.RevisionMember, error) {
	rows, err := s.q().Query(s.stmt(`SELECT f.path, r.revision, r.next_revision
		FROM {revision} r JOIN {file} f ON f.id = r.file_id
		WHERE r.changeset_id = ? ORDER BY f.path`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query members of changeset %d: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	var members []schema.RevisionMember
	for rows.Next() {
		var m schema.RevisionMember
		var next sql.NullString
		if err := rows.Scan(&m.Path, &m.Revision, &next); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.NextRevision = next.String
		members = append(members, m)
	}
	return members, rows.Err()
}
