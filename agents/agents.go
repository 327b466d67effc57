// Package agents persists the agent definitions the builder UI edits:
// name, description, free-form config, and the collections an agent is
// attached to.
package agents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when an agent id does not exist.
var ErrNotFound = errors.New("agent not found")

// ErrInvalidInput is returned for malformed caller input, a missing name
// or collection. The HTTP layer maps it to a 400.
var ErrInvalidInput = errors.New("invalid input")

// Agent is a configured agent. Config is opaque to the store.
type Agent struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Config      map[string]any `json:"config"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Update carries partial agent changes; nil fields are left untouched.
type Update struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	IsActive    *bool          `json:"is_active,omitempty"`
}

// Store is the SQLite-backed agent database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens the agent database and ensures its schema.
func New(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT,
            config TEXT NOT NULL,
            is_active INTEGER DEFAULT 1,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS agent_collections (
            agent_id TEXT NOT NULL,
            collection_name TEXT NOT NULL,
            created_at TEXT NOT NULL,
            PRIMARY KEY (agent_id, collection_name),
            FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE
        );`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	return &Store{db: db, logger: logger}, nil
}

// Create inserts a new agent. A missing id gets a generated uuid; a nil
// config becomes an empty object.
func (s *Store) Create(ctx context.Context, agent Agent) (Agent, error) {
	if agent.Name == "" {
		return Agent{}, fmt.Errorf("agent name is required: %w", ErrInvalidInput)
	}
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if agent.Config == nil {
		agent.Config = map[string]any{}
	}

	now := time.Now().UTC()
	agent.CreatedAt = now
	agent.UpdatedAt = now
	agent.IsActive = true

	cfg, err := json.Marshal(agent.Config)
	if err != nil {
		return Agent{}, fmt.Errorf("marshal config: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, description, config, is_active, created_at, updated_at)
         VALUES (?, ?, ?, ?, 1, ?, ?)`,
		agent.ID, agent.Name, agent.Description, string(cfg),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return Agent{}, fmt.Errorf("create agent: %w", err)
	}

	s.logger.Info("agent created", "id", agent.ID, "name", agent.Name)
	return agent, nil
}

// Get returns an agent by id.
func (s *Store) Get(ctx context.Context, id string) (Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, config, is_active, created_at, updated_at
         FROM agents WHERE id = ?`, id)
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, fmt.Errorf("agent %q: %w", id, ErrNotFound)
	}
	return agent, err
}

// List returns all agents, newest first.
func (s *Store) List(ctx context.Context) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, config, is_active, created_at, updated_at
         FROM agents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, agent)
	}
	return out, rows.Err()
}

// Apply updates the given fields and bumps updated_at.
func (s *Store) Apply(ctx context.Context, id string, upd Update) (Agent, error) {
	agent, err := s.Get(ctx, id)
	if err != nil {
		return Agent{}, err
	}

	if upd.Name != nil {
		agent.Name = *upd.Name
	}
	if upd.Description != nil {
		agent.Description = *upd.Description
	}
	if upd.Config != nil {
		agent.Config = upd.Config
	}
	if upd.IsActive != nil {
		agent.IsActive = *upd.IsActive
	}
	agent.UpdatedAt = time.Now().UTC()

	cfg, err := json.Marshal(agent.Config)
	if err != nil {
		return Agent{}, fmt.Errorf("marshal config: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE agents SET name = ?, description = ?, config = ?, is_active = ?, updated_at = ?
         WHERE id = ?`,
		agent.Name, agent.Description, string(cfg), boolToInt(agent.IsActive),
		agent.UpdatedAt.Format(time.RFC3339Nano), id)
	if err != nil {
		return Agent{}, fmt.Errorf("update agent %q: %w", id, err)
	}
	return agent, nil
}

// Delete removes an agent and its collection links.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_collections WHERE agent_id = ?`, id); err != nil {
		return fmt.Errorf("delete agent links: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete agent %q: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("agent %q: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

// Collections returns the collection names linked to an agent.
func (s *Store) Collections(ctx context.Context, agentID string) ([]string, error) {
	if _, err := s.Get(ctx, agentID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT collection_name FROM agent_collections WHERE agent_id = ? ORDER BY created_at`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list agent collections: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// LinkCollection attaches a collection to an agent. Linking twice is a
// no-op.
func (s *Store) LinkCollection(ctx context.Context, agentID, collection string) error {
	if collection == "" {
		return fmt.Errorf("collection name is required: %w", ErrInvalidInput)
	}
	if _, err := s.Get(ctx, agentID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO agent_collections (agent_id, collection_name, created_at)
         VALUES (?, ?, ?)`,
		agentID, collection, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("link collection %q to agent %q: %w", collection, agentID, err)
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

func scanAgent(row rowScanner) (Agent, error) {
	var (
		agent       Agent
		description sql.NullString
		cfg         string
		isActive    int
		createdAt   string
		updatedAt   string
	)
	if err := row.Scan(&agent.ID, &agent.Name, &description, &cfg, &isActive, &createdAt, &updatedAt); err != nil {
		return Agent{}, err
	}
	agent.Description = description.String
	agent.IsActive = isActive != 0
	if err := json.Unmarshal([]byte(cfg), &agent.Config); err != nil {
		return Agent{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		agent.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		agent.UpdatedAt = ts
	}
	return agent, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
