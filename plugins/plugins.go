// Package plugins persists the plugin-store catalog: the entries the UI
// browses, plus an installed flag per entry. Actually installing a
// plugin's dependencies is the deployment's concern; this store only
// tracks catalog content and state.
package plugins

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a plugin id does not exist.
var ErrNotFound = errors.New("plugin not found")

// Plugin is one catalog entry.
type Plugin struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Icon             string            `json:"icon,omitempty"`
	ShortDescription string            `json:"shortDescription,omitempty"`
	Description      string            `json:"description,omitempty"`
	Tags             []string          `json:"tags,omitempty"`
	Category         string            `json:"category"`
	Version          string            `json:"version"`
	Author           string            `json:"author,omitempty"`
	Links            map[string]string `json:"links,omitempty"`
	Rating           float64           `json:"rating"`
	Downloads        int               `json:"downloads"`
	Installed        bool              `json:"installed"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Store is the SQLite-backed plugin catalog.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens the catalog database, ensures the schema, and seeds the
// built-in entries if the table is empty.
func New(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS plugins (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        icon TEXT,
        short_description TEXT,
        description TEXT,
        tags TEXT,
        category TEXT NOT NULL,
        version TEXT NOT NULL,
        author TEXT,
        links TEXT,
        rating REAL DEFAULT 0,
        downloads INTEGER DEFAULT 0,
        installed INTEGER DEFAULT 0,
        created_at TEXT NOT NULL
    );`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.seed(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) seed(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM plugins`).Scan(&count); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, p := range builtinCatalog {
		if err := s.Upsert(ctx, p); err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
	}
	s.logger.Info("plugin catalog seeded", "entries", len(builtinCatalog))
	return nil
}

// List returns catalog entries, optionally restricted to one category.
func (s *Store) List(ctx context.Context, category string) ([]Plugin, error) {
	query := `SELECT id, name, icon, short_description, description, tags, category,
                     version, author, links, rating, downloads, installed, created_at
              FROM plugins`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY downloads DESC, name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plugins: %w", err)
	}
	defer rows.Close()

	var out []Plugin
	for rows.Next() {
		p, err := scanPlugin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListInstalled returns the entries whose installed flag is set.
func (s *Store) ListInstalled(ctx context.Context) ([]Plugin, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, icon, short_description, description, tags, category,
                version, author, links, rating, downloads, installed, created_at
         FROM plugins WHERE installed = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list installed plugins: %w", err)
	}
	defer rows.Close()

	var out []Plugin
	for rows.Next() {
		p, err := scanPlugin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get returns one catalog entry.
func (s *Store) Get(ctx context.Context, id string) (Plugin, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, icon, short_description, description, tags, category,
                version, author, links, rating, downloads, installed, created_at
         FROM plugins WHERE id = ?`, id)
	p, err := scanPlugin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Plugin{}, fmt.Errorf("plugin %q: %w", id, ErrNotFound)
	}
	return p, err
}

// Upsert inserts or replaces a catalog entry (plugin submission).
func (s *Store) Upsert(ctx context.Context, p Plugin) error {
	if p.ID == "" || p.Name == "" {
		return errors.New("plugin id and name are required")
	}
	if p.Category == "" {
		p.Category = "tools"
	}
	if p.Version == "" {
		p.Version = "1.0.0"
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	links, err := json.Marshal(p.Links)
	if err != nil {
		return fmt.Errorf("marshal links: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO plugins (id, name, icon, short_description, description, tags,
                              category, version, author, links, rating, downloads, installed, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             name = excluded.name,
             icon = excluded.icon,
             short_description = excluded.short_description,
             description = excluded.description,
             tags = excluded.tags,
             category = excluded.category,
             version = excluded.version,
             author = excluded.author,
             links = excluded.links,
             rating = excluded.rating,
             downloads = excluded.downloads`,
		p.ID, p.Name, p.Icon, p.ShortDescription, p.Description, string(tags),
		p.Category, p.Version, p.Author, string(links), p.Rating, p.Downloads,
		boolToInt(p.Installed), p.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert plugin %q: %w", p.ID, err)
	}
	return nil
}

// SetInstalled flips the installed flag.
func (s *Store) SetInstalled(ctx context.Context, id string, installed bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE plugins SET installed = ? WHERE id = ?`, boolToInt(installed), id)
	if err != nil {
		return fmt.Errorf("update plugin %q: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("plugin %q: %w", id, ErrNotFound)
	}
	s.logger.Info("plugin install state changed", "id", id, "installed", installed)
	return nil
}

// Delete removes a catalog entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plugins WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete plugin %q: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("plugin %q: %w", id, ErrNotFound)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlugin(row rowScanner) (Plugin, error) {
	var p Plugin
	var icon, short, desc, tags, author, links sql.NullString
	var installed int
	var createdAt string
	err := row.Scan(&p.ID, &p.Name, &icon, &short, &desc, &tags, &p.Category,
		&p.Version, &author, &links, &p.Rating, &p.Downloads, &installed, &createdAt)
	if err != nil {
		return Plugin{}, err
	}
	p.Icon = icon.String
	p.ShortDescription = short.String
	p.Description = desc.String
	p.Author = author.String
	p.Installed = installed != 0
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &p.Tags); err != nil {
			return Plugin{}, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if links.Valid && links.String != "" {
		if err := json.Unmarshal([]byte(links.String), &p.Links); err != nil {
			return Plugin{}, fmt.Errorf("unmarshal links: %w", err)
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		p.CreatedAt = ts
	}
	return p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// builtinCatalog are the entries every fresh deployment starts with.
var builtinCatalog = []Plugin{
	{
		ID:               "chromadb",
		Name:             "ChromaDB",
		Icon:             "/store/icons/chroma.png",
		ShortDescription: "Vector Database for AI Applications",
		Description:      "Open-source embedding database for storing and querying embeddings. Suited to semantic search and retrieval.",
		Tags:             []string{"Vector Database", "AI/ML", "Embeddings"},
		Category:         "rag",
		Version:          "1.0.0",
		Author:           "Agent UI",
		Links: map[string]string{
			"documentation": "https://docs.trychroma.com/",
			"github":        "https://github.com/chroma-core/chroma",
		},
		Rating:    4.8,
		Downloads: 1234,
	},
	{
		ID:               "ollama",
		Name:             "Ollama",
		Icon:             "/store/icons/ollama.png",
		ShortDescription: "Run large language models locally",
		Description:      "Local LLM runtime with a model library and an OpenAI-compatible API.",
		Tags:             []string{"LLM", "Local", "AI/ML"},
		Category:         "llm",
		Version:          "1.0.0",
		Author:           "Agent UI",
		Links: map[string]string{
			"documentation": "https://github.com/ollama/ollama/tree/main/docs",
			"website":       "https://ollama.com",
		},
		Rating:    4.9,
		Downloads: 5678,
	},
	{
		ID:               "langchain",
		Name:             "LangChain",
		Icon:             "/store/icons/langchain.png",
		ShortDescription: "Framework for LLM-powered applications",
		Description:      "Composable building blocks for chains, agents, and retrieval pipelines.",
		Tags:             []string{"Framework", "Agents", "RAG"},
		Category:         "workflows",
		Version:          "1.0.0",
		Author:           "Agent UI",
		Links: map[string]string{
			"documentation": "https://python.langchain.com/docs/",
			"github":        "https://github.com/langchain-ai/langchain",
		},
		Rating:    4.7,
		Downloads: 4321,
	},
}
