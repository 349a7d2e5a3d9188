package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteMetadataStore implements MetadataStore using SQLite.
// It persists fragments plus the person and publication display records
// that citation assembly resolves against.
type SQLiteMetadataStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// Verify interface implementation at compile time
var _ MetadataStore = (*SQLiteMetadataStore)(nil)

// NewSQLiteMetadataStore creates a metadata store at the given path.
// If path is empty, creates an in-memory store for testing.
func NewSQLiteMetadataStore(path string) (*SQLiteMetadataStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	m := &SQLiteMetadataStore{db: db}
	if err := m.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return m, nil
}

func (m *SQLiteMetadataStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS fragments (
		id             TEXT PRIMARY KEY,
		chunk_type     TEXT NOT NULL,
		content        TEXT NOT NULL,
		person_id      TEXT,
		publication_id TEXT,
		metadata       TEXT,
		created_at     INTEGER NOT NULL,
		updated_at     INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fragments_person ON fragments(person_id);
	CREATE INDEX IF NOT EXISTS idx_fragments_publication ON fragments(publication_id);

	CREATE TABLE IF NOT EXISTS persons (
		id     TEXT PRIMARY KEY,
		name   TEXT NOT NULL,
		school TEXT
	);

	CREATE TABLE IF NOT EXISTS publications (
		id      TEXT PRIMARY KEY,
		title   TEXT NOT NULL,
		authors TEXT,
		year    INTEGER,
		venue   TEXT,
		doi     TEXT
	);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := m.db.Exec(schema)
	return err
}

// SaveFragments upserts fragments in a single transaction.
func (m *SQLiteMetadataStore) SaveFragments(ctx context.Context, fragments []*Fragment) error {
	if len(fragments) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO fragments
		(id, chunk_type, content, person_id, publication_id, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, f := range fragments {
		if !ValidChunkType(f.Type) {
			return fmt.Errorf("invalid chunk type %q for fragment %s", f.Type, f.ID)
		}

		var metaJSON []byte
		if len(f.Metadata) > 0 {
			metaJSON, err = json.Marshal(f.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal metadata for %s: %w", f.ID, err)
			}
		}

		createdAt := f.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		_, err = stmt.ExecContext(ctx,
			f.ID, string(f.Type), f.Content,
			nullString(f.PersonID), nullString(f.PublicationID),
			nullString(string(metaJSON)),
			createdAt.Unix(), now.Unix())
		if err != nil {
			return fmt.Errorf("failed to save fragment %s: %w", f.ID, err)
		}
	}

	return tx.Commit()
}

// GetFragment returns the fragment with the given ID, or nil if absent.
func (m *SQLiteMetadataStore) GetFragment(ctx context.Context, id string) (*Fragment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	row := m.db.QueryRowContext(ctx, `
		SELECT id, chunk_type, content, person_id, publication_id, metadata, created_at, updated_at
		FROM fragments WHERE id = ?`, id)

	f, err := scanFragment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

// GetFragments returns the fragments for the given IDs in a single query.
// Absent IDs are simply not present in the result.
func (m *SQLiteMetadataStore) GetFragments(ctx context.Context, ids []string) ([]*Fragment, error) {
	if len(ids) == 0 {
		return []*Fragment{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, chunk_type, content, person_id, publication_id, metadata, created_at, updated_at
		FROM fragments WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fragments: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Fragment, len(ids))
	for rows.Next() {
		f, err := scanFragment(rows)
		if err != nil {
			return nil, err
		}
		byID[f.ID] = f
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve caller's ID order.
	results := make([]*Fragment, 0, len(byID))
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			results = append(results, f)
		}
	}

	return results, nil
}

// DeleteFragments removes fragments by ID.
func (m *SQLiteMetadataStore) DeleteFragments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf("DELETE FROM fragments WHERE id IN (%s)", strings.Join(placeholders, ","))
	_, err := m.db.ExecContext(ctx, query, args...)
	return err
}

// SavePersons upserts person display records.
func (m *SQLiteMetadataStore) SavePersons(ctx context.Context, persons []*Person) error {
	if len(persons) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO persons (id, name, school) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range persons {
		if _, err := stmt.ExecContext(ctx, p.ID, p.Name, nullString(p.School)); err != nil {
			return fmt.Errorf("failed to save person %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// GetPerson returns the person with the given ID, or nil if absent.
func (m *SQLiteMetadataStore) GetPerson(ctx context.Context, id string) (*Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	var p Person
	var school sql.NullString
	err := m.db.QueryRowContext(ctx,
		`SELECT id, name, school FROM persons WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &school)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	p.School = school.String

	return &p, nil
}

// SavePublications upserts publication display records.
func (m *SQLiteMetadataStore) SavePublications(ctx context.Context, publications []*Publication) error {
	if len(publications) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO publications (id, title, authors, year, venue, doi)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range publications {
		var authorsJSON []byte
		if len(p.Authors) > 0 {
			authorsJSON, err = json.Marshal(p.Authors)
			if err != nil {
				return fmt.Errorf("failed to marshal authors for %s: %w", p.ID, err)
			}
		}

		_, err = stmt.ExecContext(ctx,
			p.ID, p.Title, nullString(string(authorsJSON)),
			p.Year, nullString(p.Venue), nullString(p.DOI))
		if err != nil {
			return fmt.Errorf("failed to save publication %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// GetPublication returns the publication with the given ID, or nil if absent.
func (m *SQLiteMetadataStore) GetPublication(ctx context.Context, id string) (*Publication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	var p Publication
	var authors, venue, doi sql.NullString
	var year sql.NullInt64
	err := m.db.QueryRowContext(ctx,
		`SELECT id, title, authors, year, venue, doi FROM publications WHERE id = ?`, id).
		Scan(&p.ID, &p.Title, &authors, &year, &venue, &doi)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get publication: %w", err)
	}

	if authors.Valid && authors.String != "" {
		if err := json.Unmarshal([]byte(authors.String), &p.Authors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal authors for %s: %w", p.ID, err)
		}
	}
	p.Year = int(year.Int64)
	p.Venue = venue.String
	p.DOI = doi.String

	return &p, nil
}

// GetState returns the value for a state key, or empty string if absent.
func (m *SQLiteMetadataStore) GetState(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", fmt.Errorf("store is closed")
	}

	var value string
	err := m.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state: %w", err)
	}

	return value, nil
}

// SetState stores a state key-value pair.
func (m *SQLiteMetadataStore) SetState(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := m.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO state (key, value) VALUES (?, ?)`, key, value)
	return err
}

// Close closes the store. Idempotent.
func (m *SQLiteMetadataStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	if m.db != nil {
		_, _ = m.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return m.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFragment(row rowScanner) (*Fragment, error) {
	var f Fragment
	var chunkType string
	var personID, publicationID, metaJSON sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&f.ID, &chunkType, &f.Content,
		&personID, &publicationID, &metaJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	f.Type = ChunkType(chunkType)
	f.PersonID = personID.String
	f.PublicationID = publicationID.String
	f.CreatedAt = time.Unix(createdAt, 0)
	f.UpdatedAt = time.Unix(updatedAt, 0)

	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &f.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", f.ID, err)
		}
	}

	return &f, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
