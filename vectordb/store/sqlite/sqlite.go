// Package sqlite implements the relational Store backend. Search is a
// substring match over document text: every match scores 0 and ties keep
// insertion order. It is the deliberately weaker fallback for deployments
// without a vector index, and doubles as the deterministic backend for
// text round-trip behavior regardless of the active embedding provider.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/agentui/agentd/vectordb"
)

// Store persists collections and documents in a single SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (or creates) the database and ensures the schema.
func New(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	s := &Store{db: db, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS collections (
            name TEXT PRIMARY KEY,
            metadata TEXT,
            created_at TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS documents (
            collection_name TEXT NOT NULL,
            id TEXT NOT NULL,
            content TEXT NOT NULL,
            metadata TEXT,
            embedding TEXT,
            PRIMARY KEY (collection_name, id),
            FOREIGN KEY (collection_name) REFERENCES collections(name) ON DELETE CASCADE
        );`,
		`CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection_name);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateCollection(ctx context.Context, name string, metadata map[string]any) (vectordb.Collection, error) {
	now := time.Now().UTC()
	metaJSON, err := marshalMeta(metadata)
	if err != nil {
		return vectordb.Collection{}, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO collections (name, metadata, created_at) VALUES (?, ?, ?)`,
		name, metaJSON, now.Format(time.RFC3339Nano))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return vectordb.Collection{}, fmt.Errorf("collection %q: %w", name, vectordb.ErrCollectionExists)
		}
		return vectordb.Collection{}, fmt.Errorf("create collection %q: %w", name, err)
	}

	s.logger.Debug("sqlite collection created", "name", name)
	return vectordb.Collection{Name: name, Metadata: metadata, CreatedAt: now}, nil
}

func (s *Store) GetCollection(ctx context.Context, name string) (vectordb.Collection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, metadata, created_at FROM collections WHERE name = ?`, name)
	col, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return vectordb.Collection{}, fmt.Errorf("collection %q: %w", name, vectordb.ErrCollectionNotFound)
	}
	if err != nil {
		return vectordb.Collection{}, fmt.Errorf("get collection %q: %w", name, err)
	}
	return col, nil
}

func (s *Store) ListCollections(ctx context.Context) ([]vectordb.Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, metadata, created_at FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var out []vectordb.Collection
	for rows.Next() {
		col, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("list collections: %w", err)
		}
		out = append(out, col)
	}
	return out, rows.Err()
}

// DeleteCollection removes the collection and its documents in one
// transaction, so no intermediate state is observable.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection_name = ?`, name); err != nil {
		return fmt.Errorf("delete documents of %q: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete collection %q: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("collection %q: %w", name, vectordb.ErrCollectionNotFound)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug("sqlite collection deleted", "name", name)
	return nil
}

func (s *Store) UpsertDocuments(ctx context.Context, collection string, docs []vectordb.Document) error {
	if _, err := s.GetCollection(ctx, collection); err != nil {
		return err
	}

	// One transaction per document: a cancelled batch leaves only whole
	// documents committed. ON CONFLICT UPDATE keeps the original rowid,
	// so replacing a document does not move it in insertion order.
	for _, doc := range docs {
		metaJSON, err := marshalMeta(doc.Metadata)
		if err != nil {
			return fmt.Errorf("document %q: %w", doc.ID, err)
		}
		embJSON, err := json.Marshal(doc.Embedding)
		if err != nil {
			return fmt.Errorf("document %q: marshal embedding: %w", doc.ID, err)
		}

		_, err = s.db.ExecContext(ctx,
			`INSERT INTO documents (collection_name, id, content, metadata, embedding)
             VALUES (?, ?, ?, ?, ?)
             ON CONFLICT(collection_name, id) DO UPDATE SET
                 content = excluded.content,
                 metadata = excluded.metadata,
                 embedding = excluded.embedding`,
			collection, doc.ID, doc.Text, metaJSON, string(embJSON))
		if err != nil {
			return fmt.Errorf("upsert document %q into %q: %w", doc.ID, collection, err)
		}
	}
	return nil
}

func (s *Store) DeleteDocuments(ctx context.Context, collection string, ids []string) error {
	if _, err := s.GetCollection(ctx, collection); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, collection)
	for _, id := range ids {
		args = append(args, id)
	}

	// Absent ids simply match no rows.
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection_name = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete documents from %q: %w", collection, err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, collection string, req vectordb.SearchRequest) ([]vectordb.ScoredDocument, error) {
	if _, err := s.GetCollection(ctx, collection); err != nil {
		return nil, err
	}

	pattern := "%" + escapeLike(req.Text) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, metadata, embedding FROM documents
         WHERE collection_name = ? AND content LIKE ? ESCAPE '\'
         ORDER BY rowid`,
		collection, pattern)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", collection, err)
	}
	defer rows.Close()

	out := []vectordb.ScoredDocument{}
	for rows.Next() {
		var (
			doc      vectordb.Document
			metaJSON sql.NullString
			embJSON  sql.NullString
		)
		if err := rows.Scan(&doc.ID, &doc.Text, &metaJSON, &embJSON); err != nil {
			return nil, fmt.Errorf("query %q: %w", collection, err)
		}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &doc.Metadata); err != nil {
				return nil, fmt.Errorf("document %q: unmarshal metadata: %w", doc.ID, err)
			}
		}
		if embJSON.Valid && embJSON.String != "" {
			if err := json.Unmarshal([]byte(embJSON.String), &doc.Embedding); err != nil {
				return nil, fmt.Errorf("document %q: unmarshal embedding: %w", doc.ID, err)
			}
		}

		if !matchesWhere(doc.Metadata, req.Where) {
			continue
		}

		// Substring match carries no similarity signal: every match
		// scores 0 and insertion order breaks the tie.
		out = append(out, vectordb.ScoredDocument{Document: doc})
		if len(out) >= req.NResults {
			break
		}
	}
	return out, rows.Err()
}

// Heartbeat runs a trivial query to confirm the file is reachable.
func (s *Store) Heartbeat(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", vectordb.ErrBackendUnavailable, err)
	}
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("%w: %v", vectordb.ErrBackendUnavailable, err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCollection(row rowScanner) (vectordb.Collection, error) {
	var (
		col       vectordb.Collection
		metaJSON  sql.NullString
		createdAt string
	)
	if err := row.Scan(&col.Name, &metaJSON, &createdAt); err != nil {
		return vectordb.Collection{}, err
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &col.Metadata); err != nil {
			return vectordb.Collection{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		col.CreatedAt = ts
	}
	return col, nil
}

func marshalMeta(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal metadata: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

// matchesWhere applies the exact-match-on-all-keys predicate. Values are
// compared by their JSON form so numbers decoded as float64 still match.
func matchesWhere(metadata, where map[string]any) bool {
	if len(where) == 0 {
		return true
	}
	for k, want := range where {
		got, ok := metadata[k]
		if !ok {
			return false
		}
		gotJSON, err1 := json.Marshal(got)
		wantJSON, err2 := json.Marshal(want)
		if err1 != nil || err2 != nil || string(gotJSON) != string(wantJSON) {
			return false
		}
	}
	return true
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

var _ vectordb.Store = (*Store)(nil)
