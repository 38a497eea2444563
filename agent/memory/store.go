// Package memory persists per-user conversation context in Postgres with
// pgvector similarity search. Writes are tagged with the producing agent;
// reads search the user's context across all agents.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/mafa-systems/mafa-agents/agent/contract"
)

const (
	defaultMatchCount = 5
	defaultEmbedDim   = 1536
)

type Config struct {
	DSN      string `split_words:"true"`
	EmbedDim int    `split_words:"true" default:"1536"`
}

// Embedder turns text into an embedding vector. The LLM client satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Record is one stored context row.
type Record struct {
	bun.BaseModel `bun:"table:agent_memory,alias:m"`

	ID        uuid.UUID      `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	UserID    string         `bun:"user_id,notnull"`
	Agent     string         `bun:"agent,notnull"`
	Content   string         `bun:"content,notnull"`
	Metadata  map[string]any `bun:"metadata,type:jsonb"`
	Embedding string         `bun:"embedding,notnull"`
	CreatedAt time.Time      `bun:"created_at,notnull,default:current_timestamp"`
}

// Store implements contract.MemoryStore on Postgres/pgvector via bun.
type Store struct {
	db       *bun.DB
	embed    Embedder
	embedDim int
}

func NewStore(cfg Config, embed Embedder) (*Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if embed == nil {
		return nil, errors.New("embedder is required")
	}

	embedDim := cfg.EmbedDim
	if embedDim <= 0 {
		embedDim = defaultEmbedDim
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	return &Store{db: db, embed: embed, embedDim: embedDim}, nil
}

// EnsureSchema provisions the extension, table, and indexes. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS agent_memory (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id text NOT NULL,
			agent text NOT NULL,
			content text NOT NULL,
			metadata jsonb DEFAULT '{}'::jsonb,
			embedding vector(%d) NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, s.embedDim),
		`CREATE INDEX IF NOT EXISTS agent_memory_user_agent_idx ON agent_memory (user_id, agent)`,
		`CREATE INDEX IF NOT EXISTS agent_memory_ivfflat_embedding_idx
			ON agent_memory USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure memory schema: %w", err)
		}
	}
	return nil
}

func (s *Store) WriteContext(ctx context.Context, userID int64, agent, content string, metadata map[string]any) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("%w: memory content is empty", contractx.ErrValidation)
	}

	vector, err := s.embed.Embed(ctx, content)
	if err != nil {
		return err
	}

	merged := map[string]any{"source_agent": agent}
	for k, v := range metadata {
		merged[k] = v
	}

	rec := &Record{
		UserID:    strconv.FormatInt(userID, 10),
		Agent:     agent,
		Content:   content,
		Metadata:  merged,
		Embedding: vectorLiteral(vector),
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return fmt.Errorf("insert memory record: %w", err)
	}
	return nil
}

type matchRow struct {
	Content    string    `bun:"content"`
	Agent      string    `bun:"agent"`
	Similarity float64   `bun:"similarity"`
	CreatedAt  time.Time `bun:"created_at"`
}

// ReadContext returns the user's most similar context rows for query, newest
// semantics aside: ranking is purely cosine similarity.
func (s *Store) ReadContext(ctx context.Context, userID int64, agent, query string, limit int) ([]contractx.MemoryMatch, error) {
	if limit <= 0 {
		limit = defaultMatchCount
	}

	vector, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	literal := vectorLiteral(vector)

	var rows []matchRow
	err = s.db.NewRaw(
		`SELECT content, agent, created_at, 1 - (embedding <=> ?::vector) AS similarity
		 FROM agent_memory
		 WHERE user_id = ?
		 ORDER BY embedding <=> ?::vector
		 LIMIT ?`,
		literal, strconv.FormatInt(userID, 10), literal, limit,
	).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	matches := make([]contractx.MemoryMatch, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, contractx.MemoryMatch{
			Content:    row.Content,
			Agent:      row.Agent,
			Similarity: row.Similarity,
			CreatedAt:  row.CreatedAt,
		})
	}
	return matches, nil
}

// Ping probes database reachability for health reporting.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// vectorLiteral renders a pgvector input literal: [v1,v2,...].
func vectorLiteral(vector []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	sb.WriteByte(']')
	return sb.String()
}

var _ contractx.MemoryStore = (*Store)(nil)
