// Package index records changesets in a relational database so that the
// changeset of any file revision can be looked up later.
package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/schema"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver
)

// Table names of the index.
const (
	changesetTable = "changeset"
	fileTable      = "file"
	revisionTable  = "revision"
	branchTable    = "branch"
	metaTable      = "meta"
)

// Meta keys.
const (
	metaSourceRoot = "source_root"
	metaModules    = "modules"
)

var allTables = []string{changesetTable, fileTable, revisionTable, branchTable, metaTable}

// ErrNotFound is returned when a revision is not part of any indexed changeset.
var ErrNotFound = errors.New("revision not indexed")

// queryer is implemented by *sql.DB and *sql.Tx.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store handles index storage operations using various database backends.
type Store struct {
	db         *sql.DB
	tx         *sql.Tx
	backend    schema.DatabaseBackend
	driverName string
	connStr    string
	log        logrus.FieldLogger

	current  string
	branches map[string]bool
	fileIDs  map[string]int64
}

// Open initializes and returns a new Store based on the backend type.
// An empty SQLite connection string selects the default index file.
func Open(backend schema.DatabaseBackend, connStr string, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = contract.Logger
	}
	s := &Store{
		backend:  backend,
		connStr:  connStr,
		log:      log,
		branches: make(map[string]bool),
		fileIDs:  make(map[string]int64),
	}

	var err error
	switch backend {
	case schema.SQLiteBackend:
		s.driverName = "sqlite"
		if s.connStr == "" {
			s.connStr = contract.GetIndexDBFilePath()
		}
		s.db, err = sql.Open(s.driverName, s.connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite index at %q: %w. Check that the directory is writable", s.connStr, err)
		}
		// Limit SQLite to a single open connection to avoid "database is locked" errors
		s.db.SetMaxOpenConns(1)

	case schema.MySQLBackend:
		// connStr should be:
		// user:password@tcp(host:port)/dbname
		s.driverName = "mysql"
		s.db, err = sql.Open(s.driverName, connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to open MySQL index: %w. Check connection format: user:password@tcp(host:port)/dbname", err)
		}

	case schema.PostgreSQLBackend:
		// connStr should be:
		// host=localhost port=5432 user=postgres password=mysecretpassword dbname=postgres
		s.driverName = "pgx"
		s.db, err = sql.Open(s.driverName, connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL index: %w. Check connection format: host=localhost port=5432 user=postgres dbname=mydb", err)
		}

	case schema.NoneBackend:
		// No-op store for dry runs
		return s, nil

	default:
		return nil, fmt.Errorf("unsupported index backend: %s. Must be sqlite, mysql, postgresql, or none", backend)
	}

	if err := s.db.Ping(); err != nil {
		_ = s.db.Close()
		return nil, fmt.Errorf("failed to connect to %s database. Check that the server is running and connection parameters are valid: %w", backend, err)
	}
	if err := createTables(s.db, backend); err != nil {
		_ = s.db.Close()
		return nil, fmt.Errorf("failed to create index tables: %w", err)
	}
	return s, nil
}

// createTables creates every index table that does not exist yet.
func createTables(db *sql.DB, backend schema.DatabaseBackend) error {
	for _, stmt := range createTableQueries(backend) {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// createTableQueries returns the DDL for the given backend.
func createTableQueries(backend schema.DatabaseBackend) []string {
	q := func(name string) string { return quoteTableName(name, backend) }
	switch backend {
	case schema.MySQLBackend:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				branch VARCHAR(255) NOT NULL,
				author VARCHAR(255) NOT NULL,
				date BIGINT NOT NULL
			)`, q(changesetTable)),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				path VARCHAR(512) NOT NULL UNIQUE
			)`, q(fileTable)),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				file_id BIGINT NOT NULL,
				revision VARCHAR(64) NOT NULL,
				next_revision VARCHAR(64),
				changeset_id BIGINT NOT NULL,
				PRIMARY KEY (file_id, revision),
				INDEX revision_changeset (changeset_id)
			)`, q(revisionTable)),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				name VARCHAR(255) PRIMARY KEY,
				parent VARCHAR(255) NOT NULL,
				vendor TINYINT NOT NULL,
				created BIGINT NOT NULL
			)`, q(branchTable)),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				meta_key VARCHAR(255) PRIMARY KEY,
				meta_value TEXT NOT NULL
			)`, q(metaTable)),
		}

	case schema.PostgreSQLBackend:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				branch TEXT NOT NULL,
				author TEXT NOT NULL,
				date BIGINT NOT NULL
			)`, q(changesetTable)),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				path TEXT NOT NULL UNIQUE
			)`, q(fileTable)),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				file_id BIGINT NOT NULL,
				revision TEXT NOT NULL,
				next_revision TEXT,
				changeset_id BIGINT NOT NULL,
				PRIMARY KEY (file_id, revision)
			)`, q(revisionTable)),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS revision_changeset ON %s (changeset_id)`, q(revisionTable)),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				name TEXT PRIMARY KEY,
				parent TEXT NOT NULL,
				vendor SMALLINT NOT NULL,
				created BIGINT NOT NULL
			)`, q(branchTable)),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				meta_key TEXT PRIMARY KEY,
				meta_value TEXT NOT NULL
			)`, q(metaTable)),
		}

	default: // SQLite
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				branch TEXT NOT NULL,
				author TEXT NOT NULL,
				date INTEGER NOT NULL
			)`, q(changesetTable)),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				path TEXT NOT NULL UNIQUE
			)`, q(fileTable)),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				file_id INTEGER NOT NULL,
				revision TEXT NOT NULL,
				next_revision TEXT,
				changeset_id INTEGER NOT NULL,
				PRIMARY KEY (file_id, revision)
			)`, q(revisionTable)),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS revision_changeset ON %s (changeset_id)`, q(revisionTable)),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				name TEXT PRIMARY KEY,
				parent TEXT NOT NULL,
				vendor INTEGER NOT NULL,
				created INTEGER NOT NULL
			)`, q(branchTable)),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				meta_key TEXT PRIMARY KEY,
				meta_value TEXT NOT NULL
			)`, q(metaTable)),
		}
	}
}

// Backend returns the database backend of the store.
func (s *Store) Backend() schema.DatabaseBackend {
	return s.backend
}

// Close closes the underlying DB connection, rolling back an unfinished run.
func (s *Store) Close() error {
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Init records the source repository the index describes.
func (s *Store) Init(sourceRoot string, modules []string) error {
	if s.db == nil {
		return nil
	}
	if err := s.setMeta(metaSourceRoot, sourceRoot); err != nil {
		return err
	}
	return s.setMeta(metaModules, strings.Join(modules, " "))
}

// SourceRoot returns the repository root recorded by Init.
func (s *Store) SourceRoot() (string, error) {
	return s.getMeta(metaSourceRoot)
}

// Modules returns the modules recorded by Init.
func (s *Store) Modules() ([]string, error) {
	v, err := s.getMeta(metaModules)
	if err != nil {
		return nil, err
	}
	return strings.Fields(v), nil
}

func (s *Store) setMeta(key, value string) error {
	var query string
	switch s.backend {
	case schema.MySQLBackend:
		query = `INSERT INTO {meta} (meta_key, meta_value) VALUES (?, ?) AS new
			ON DUPLICATE KEY UPDATE meta_value = new.meta_value`
	case schema.PostgreSQLBackend:
		query = `INSERT INTO {meta} (meta_key, meta_value) VALUES (?, ?)
			ON CONFLICT (meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value`
	default: // SQLite
		query = `INSERT OR REPLACE INTO {meta} (meta_key, meta_value) VALUES (?, ?)`
	}
	if _, err := s.q().Exec(s.stmt(query), key, value); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (s *Store) getMeta(key string) (string, error) {
	if s.db == nil {
		return "", nil
	}
	var value string
	err := s.q().QueryRow(s.stmt(`SELECT meta_value FROM {meta} WHERE meta_key = ?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

// q returns the open transaction of a run, or the database.
func (s *Store) q() queryer {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// stmt expands {table} references and rebinds ? placeholders for the backend.
func (s *Store) stmt(query string) string {
	for _, name := range allTables {
		query = strings.ReplaceAll(query, "{"+name+"}", quoteTableName(name, s.backend))
	}
	if s.backend != schema.PostgreSQLBackend {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// database names the database the store writes to.
func (s *Store) database() string {
	switch s.backend {
	case schema.SQLiteBackend:
		return s.connStr
	case schema.MySQLBackend:
		cfg, err := mysql.ParseDSN(s.connStr)
		if err != nil {
			return ""
		}
		return cfg.DBName
	case schema.PostgreSQLBackend:
		cfg, err := pgx.ParseConfig(s.connStr)
		if err != nil {
			return ""
		}
		return cfg.Database
	default:
		return ""
	}
}

// quoteTableName returns the properly quoted table name for the given backend.
func quoteTableName(name string, backend schema.DatabaseBackend) string {
	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf("`%s`", name)
	default: // SQLite and PostgreSQL
		return fmt.Sprintf("\"%s\"", name)
	}
}
