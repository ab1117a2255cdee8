// Package usage records per-request accounting — provider, model,
// tokens, latency, and opportunistic cost estimates — in SQLite.
//
// The store is append-mostly: every completed request inserts one row,
// a cron job prunes rows older than the retention window, and the
// metrics snapshot endpoint reads aggregate totals.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"
)

// Record is one completed request's accounting row.
type Record struct {
	RequestID        string
	Operation        string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
	CostUSD          float64
	Cached           bool
	Status           string
	CreatedAt        time.Time
}

// Totals is the aggregate view the metrics snapshot serves.
type Totals struct {
	Requests         int64   `json:"requests"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// Config configures the store.
type Config struct {
	// Path is the database file path.
	Path string

	// Retention is how long rows are kept. Default: 30 days.
	Retention time.Duration

	// PruneSchedule is a cron expression for retention pruning.
	// Default: "17 3 * * *" (daily).
	PruneSchedule string

	// MaxOpenConns bounds the connection pool. Default: 10.
	MaxOpenConns int
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = "data/usage.db"
	}
	if c.Retention <= 0 {
		c.Retention = 30 * 24 * time.Hour
	}
	if c.PruneSchedule == "" {
		c.PruneSchedule = "17 3 * * *"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	return c
}

const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	operation TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	cost_usd REAL NOT NULL DEFAULT 0,
	cached INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_usage_created_at ON usage_records(created_at);
CREATE INDEX IF NOT EXISTS idx_usage_provider ON usage_records(provider);
`

// Store is the SQLite-backed accounting store.
type Store struct {
	db     *sql.DB
	config Config
	logger *slog.Logger

	cron *cron.Cron

	mu     sync.Mutex
	closed bool
}

// NewStore opens (creating if needed) the database, applies the schema,
// and schedules retention pruning.
func NewStore(config Config) (*Store, error) {
	config = config.withDefaults()
	logger := slog.Default().With("component", "usage.store")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage database %q: %w", config.Path, err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create usage schema: %w", err)
	}

	s := &Store{
		db:     db,
		config: config,
		logger: logger,
		cron:   cron.New(),
	}

	if _, err := s.cron.AddFunc(config.PruneSchedule, s.prune); err != nil {
		db.Close()
		return nil, fmt.Errorf("invalid prune schedule %q: %w", config.PruneSchedule, err)
	}
	s.cron.Start()

	logger.Info("usage store initialized",
		"path", config.Path,
		"retention", config.Retention.String(),
		"prune_schedule", config.PruneSchedule,
	)

	return s, nil
}

// Append inserts one record. Failures are logged, not surfaced —
// accounting never blocks a request.
func (s *Store) Append(ctx context.Context, rec Record) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records
			(request_id, operation, provider, model, prompt_tokens, completion_tokens, latency_ms, cost_usd, cached, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Operation, rec.Provider, rec.Model,
		rec.PromptTokens, rec.CompletionTokens, rec.LatencyMS,
		rec.CostUSD, rec.Cached, rec.Status, rec.CreatedAt,
	)
	if err != nil {
		s.logger.Warn("failed to append usage record",
			"request_id", rec.RequestID,
			"error", err,
		)
	}
}

// Totals aggregates all stored rows. Rows older than the retention
// window are counted until the next scheduled prune deletes them.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0),
		       COALESCE(SUM(cost_usd), 0)
		FROM usage_records`)
	if err := row.Scan(&t.Requests, &t.PromptTokens, &t.CompletionTokens, &t.CostUSD); err != nil {
		return Totals{}, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	return t, nil
}

// TotalsByProvider aggregates per provider.
func (s *Store) TotalsByProvider(ctx context.Context) (map[string]Totals, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider,
		       COUNT(*),
		       COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0),
		       COALESCE(SUM(cost_usd), 0)
		FROM usage_records
		GROUP BY provider`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage by provider: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Totals)
	for rows.Next() {
		var provider string
		var t Totals
		if err := rows.Scan(&provider, &t.Requests, &t.PromptTokens, &t.CompletionTokens, &t.CostUSD); err != nil {
			return nil, err
		}
		out[provider] = t
	}
	return out, rows.Err()
}

// prune deletes rows older than the retention window.
func (s *Store) prune() {
	cutoff := time.Now().Add(-s.config.Retention)
	result, err := s.db.Exec(`DELETE FROM usage_records WHERE created_at < ?`, cutoff)
	if err != nil {
		s.logger.Warn("usage prune failed", "error", err)
		return
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		s.logger.Info("usage records pruned", "deleted", n, "cutoff", cutoff)
	}
}

// Close stops pruning and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	<-s.cron.Stop().Done()
	return s.db.Close()
}
