// Package localcache persists the last-known-good AgentRecord per agent to
// PostgreSQL, so a process restart has a non-empty snapshot to serve while
// the memory service is still unreachable. It is an optional write-through
// fallback, not a system of record — the memory service remains the only
// durable store per spec §1.
package localcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/MrWong99/voiceagentcore/pkg/memory"
	"github.com/MrWong99/voiceagentcore/pkg/types"
)

// Schema is the SQL DDL for the agent_snapshot_cache table. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS agent_snapshot_cache (
    agent_id        TEXT PRIMARY KEY,
    name            TEXT NOT NULL DEFAULT '',
    persona         TEXT NOT NULL DEFAULT '',
    persona_vector  vector(%d),
    blocks          JSONB NOT NULL DEFAULT '[]',
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a write-through, read-as-fallback cache of [memory.AgentRecord]
// values backed by PostgreSQL.
type Store struct {
	db        DB
	embedDims int
}

// NewStore creates a [Store]. embedDims sizes the persona_vector column and
// must match the configured embedding model's dimensionality; 0 disables
// the embedding column's use (persona_vector is left null on writes).
func NewStore(db DB, embedDims int) *Store {
	return &Store{db: db, embedDims: embedDims}
}

// Migrate executes the schema DDL, creating the cache table if absent.
func (s *Store) Migrate(ctx context.Context) error {
	dims := s.embedDims
	if dims <= 0 {
		dims = 1536
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf(Schema, dims))
	if err != nil {
		return fmt.Errorf("localcache: migrate: %w", err)
	}
	return nil
}

// Put writes rec as the latest known snapshot for agentID. personaEmbedding
// may be nil when no embedding provider is configured.
func (s *Store) Put(ctx context.Context, agentID string, rec memory.AgentRecord, personaEmbedding []float32) error {
	blocksJSON, err := json.Marshal(rec.Blocks)
	if err != nil {
		return fmt.Errorf("localcache: marshal blocks: %w", err)
	}

	var vec any
	if personaEmbedding != nil {
		v := pgvector.NewVector(personaEmbedding)
		vec = &v
	}

	const query = `
		INSERT INTO agent_snapshot_cache (agent_id, name, persona, persona_vector, blocks, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (agent_id) DO UPDATE SET
			name = EXCLUDED.name,
			persona = EXCLUDED.persona,
			persona_vector = EXCLUDED.persona_vector,
			blocks = EXCLUDED.blocks,
			updated_at = now()`
	_, err = s.db.Exec(ctx, query, agentID, rec.Name, rec.Persona, vec, blocksJSON)
	if err != nil {
		return fmt.Errorf("localcache: put %q: %w", agentID, err)
	}
	return nil
}

// Get returns the last cached snapshot for agentID. It returns
// (AgentRecord{}, false, nil) if nothing has ever been cached for this
// agent — this is the expected state on a first-ever run, not an error.
func (s *Store) Get(ctx context.Context, agentID string) (memory.AgentRecord, bool, error) {
	const query = `SELECT name, persona, blocks FROM agent_snapshot_cache WHERE agent_id = $1`

	var name, persona string
	var blocksJSON []byte
	err := s.db.QueryRow(ctx, query, agentID).Scan(&name, &persona, &blocksJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return memory.AgentRecord{}, false, nil
		}
		return memory.AgentRecord{}, false, fmt.Errorf("localcache: get %q: %w", agentID, err)
	}

	var blocks []types.Block
	if err := json.Unmarshal(blocksJSON, &blocks); err != nil {
		return memory.AgentRecord{}, false, fmt.Errorf("localcache: unmarshal blocks: %w", err)
	}
	return memory.AgentRecord{Name: name, Persona: persona, Blocks: blocks}, true, nil
}
