package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hacknation/tagscan/service-gateway/internal/models"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// PostgresStore keeps item documents as JSONB rows
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStorage(host, port, user, password, dbName, sslMode string) (*PostgresStore, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbName, sslMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize db schema: %w", err)
	}

	return store, nil
}

// Init creates the items table
func (s *PostgresStore) Init() error {
	query := `
	CREATE TABLE IF NOT EXISTS ` + ItemsCollection + ` (
		id VARCHAR(64) PRIMARY KEY,
		data JSONB NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_` + ItemsCollection + `_created_at ON ` + ItemsCollection + `(created_at);`

	_, err := s.db.Exec(query)
	return err
}

// Set creates or replaces the document stored under id
func (s *PostgresStore) Set(ctx context.Context, id string, doc models.Document) error {
	body, err := encodeDocument(id, doc)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO ` + ItemsCollection + ` (id, data, created_at, updated_at)
	VALUES ($1, $2::jsonb, $3, $3)
	ON CONFLICT (id) DO UPDATE SET
		data = EXCLUDED.data,
		updated_at = EXCLUDED.updated_at`

	if _, err := s.db.ExecContext(ctx, query, id, string(body), time.Now()); err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to save item to postgres")
		return fmt.Errorf("failed to save item: %w", err)
	}

	return nil
}

// Get retrieves a document by id
func (s *PostgresStore) Get(ctx context.Context, id string) (models.Document, error) {
	query := `SELECT data FROM ` + ItemsCollection + ` WHERE id = $1`

	var body []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to get item from postgres")
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return decodeDocument(id, body)
}

// Update merges the patch into the top level of the stored document in a
// single statement.
func (s *PostgresStore) Update(ctx context.Context, id string, patch models.Document) (models.Document, error) {
	patch = patch.Clone()
	delete(patch, "id")

	body, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch: %w", err)
	}

	query := `
	UPDATE ` + ItemsCollection + `
	SET data = data || $2::jsonb, updated_at = $3
	WHERE id = $1
	RETURNING data`

	var merged []byte
	err = s.db.QueryRowContext(ctx, query, id, string(body), time.Now()).Scan(&merged)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to update item in postgres")
		return nil, fmt.Errorf("failed to update item: %w", err)
	}

	return decodeDocument(id, merged)
}

// Delete removes a document by id
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM ` + ItemsCollection + ` WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to delete item from postgres")
		return fmt.Errorf("failed to delete item: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// List returns every document, oldest first
func (s *PostgresStore) List(ctx context.Context) ([]models.Document, error) {
	query := `SELECT id, data FROM ` + ItemsCollection + ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	docs := make([]models.Document, 0)
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		doc, err := decodeDocument(id, body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	return docs, nil
}

// HealthCheck verifies the database connection
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func encodeDocument(id string, doc models.Document) ([]byte, error) {
	doc = doc.Clone()
	doc["id"] = id

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}
	return body, nil
}

func decodeDocument(id string, body []byte) (models.Document, error) {
	doc := models.Document{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode item %s: %w", id, err)
	}
	doc["id"] = id
	return doc, nil
}
