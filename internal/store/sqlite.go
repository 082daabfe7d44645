package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperengineering/syncbridge/internal/types"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists local entities and sync state in SQLite.
type SQLiteStore struct {
	db     *sql.DB
	schema *Schema
}

// Compile-time interface checks
var (
	_ EntityStore = (*SQLiteStore)(nil)
	_ StateStore  = (*SQLiteStore)(nil)
)

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string, schema *Schema) (*SQLiteStore, error) {
	if schema == nil {
		return nil, errors.New("schema is required")
	}

	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite has a single writer; one connection also keeps :memory:
	// databases shared across calls.
	db.SetMaxOpenConns(1)

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, schema: schema}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Schema returns the entity schema the store validates against.
func (s *SQLiteStore) Schema() *Schema {
	return s.schema
}

// HasBundles reports whether the entity type is sub-typed by bundle.
func (s *SQLiteStore) HasBundles(entityType string) bool {
	return s.schema.HasBundles(entityType)
}

// Create returns a new unsaved entity of the given type and bundle.
func (s *SQLiteStore) Create(ctx context.Context, entityType, bundle string) (types.Entity, error) {
	if err := s.schema.checkBundle(entityType, bundle); err != nil {
		return nil, err
	}
	return newEntity(s.schema, entityType, bundle), nil
}

// Load retrieves an entity by ID.
func (s *SQLiteStore) Load(ctx context.Context, entityType, id string) (types.Entity, error) {
	if _, ok := s.schema.types[entityType]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}

	var bundle, fieldsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT bundle, fields FROM entities WHERE id = ? AND entity_type = ?
	`, id, entityType).Scan(&bundle, &fieldsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %q: %w", entityType, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load entity: %w", err)
	}

	e := newEntity(s.schema, entityType, bundle)
	e.id = id
	if err := decodeFields(fieldsJSON, e.fields); err != nil {
		return nil, fmt.Errorf("decode fields of %s %q: %w", entityType, id, err)
	}
	return e, nil
}

// QueryByField returns the IDs of entities with a field item equal to value.
// Values are compared by their string form so a remote 42 matches a stored "42".
func (s *SQLiteStore) QueryByField(ctx context.Context, entityType, bundle, field string, value any) ([]string, error) {
	if _, ok := s.schema.field(entityType, field); !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, entityType, field)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT e.id
		FROM entities e, json_each(e.fields, ?) j
		WHERE e.entity_type = ?
		  AND (? = '' OR e.bundle = ?)
		  AND CAST(j.value AS TEXT) = ?
		ORDER BY e.id ASC
	`, jsonPath(field), entityType, bundle, bundle, types.IDString(value))
	if err != nil {
		return nil, fmt.Errorf("query by field: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan entity id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return ids, nil
}

// Save inserts new entities and updates existing ones.
func (s *SQLiteStore) Save(ctx context.Context, entity types.Entity) error {
	e, ok := entity.(*Entity)
	if !ok {
		return ErrForeignEntity
	}

	fieldsJSON, err := json.Marshal(e.fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	if e.IsNew() {
		id := ulid.Make().String()
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO entities (id, entity_type, bundle, fields, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, e.entityType, e.bundle, string(fieldsJSON), now, now)
		if err != nil {
			return fmt.Errorf("insert entity: %w", err)
		}
		e.id = id
		return nil
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE entities SET fields = ?, updated_at = ? WHERE id = ? AND entity_type = ?
	`, string(fieldsJSON), now, e.id, e.entityType)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %q: %w", e.entityType, e.id, ErrNotFound)
	}
	return nil
}

// CountEntities returns the number of stored entities of a type.
func (s *SQLiteStore) CountEntities(ctx context.Context, entityType string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entities WHERE entity_type = ?", entityType).Scan(&count)
	return count, err
}

// jsonPath builds the JSON path selecting a top-level field.
func jsonPath(field string) string {
	quoted, _ := json.Marshal(field)
	return "$." + string(quoted)
}

// decodeFields parses the stored field bag, keeping numbers exact.
func decodeFields(data string, into map[string][]any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	return dec.Decode(&into)
}
