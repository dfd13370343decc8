// Package store is the C4 Store: it combines Postgres persistence, an
// in-memory cache, and agent lifecycle operations (create/load/advance),
// grounded file-for-file on original_source/src/immagent/store.py (the
// most complete, authoritative version of the Store in the corpus) and on
// internal/persistence/databases/{chat_store_postgres,chat_store_memory,
// factory,pool}.go for the Go connection-pool and backend-selection idiom.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kgk9000/immagent/agent"
	"github.com/kgk9000/immagent/assets"
	"github.com/kgk9000/immagent/conversation"
	"github.com/kgk9000/immagent/immerr"
	"github.com/kgk9000/immagent/llmclient"
	"github.com/kgk9000/immagent/turn"
)

// Store is the unified cache-and-database access point for agents. A nil
// pool means memory mode: no persistence, cache holds the only copy of
// every asset. A non-nil pool means Postgres mode: the database is the
// source of truth and the cache is a discardable, weak-pointer-backed
// speedup.
type Store struct {
	pool *pgxpool.Pool

	systemPrompts assetCache[assets.SystemPrompt]
	messages      assetCache[conversation.Message]
	conversations assetCache[conversation.Conversation]
	agents        assetCache[agent.Agent]

	llmConfig llmclient.Config
	gateway   turn.Gateway

	poolConfig poolConfig

	// testProvider, when set, is used by Advance instead of calling
	// llmclient.Build, so package tests can drive the turn loop with a
	// canned Provider instead of live model credentials.
	testProvider llmclient.Provider
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLLMConfig supplies the credentials Advance uses to build a
// llmclient.Provider for whatever model an agent is advanced with.
func WithLLMConfig(cfg llmclient.Config) Option {
	return func(s *Store) { s.llmConfig = cfg }
}

// WithGateway attaches a tool gateway. Advancing an agent without one set
// behaves exactly like passing mcp=None to the original's _advance: tool
// calls, if the model makes any, are never dispatched and the turn ends
// after the first assistant message.
func WithGateway(gw turn.Gateway) Option {
	return func(s *Store) { s.gateway = gw }
}

// poolConfig carries the subset of pgxpool.Config that Connect lets
// callers tune, defaulting to the teacher's 8/0/1h/5m.
type poolConfig struct {
	maxConns        int32
	minConns        int32
	maxConnLifetime time.Duration
	maxConnIdleTime time.Duration
}

func defaultPoolConfig() poolConfig {
	return poolConfig{
		maxConns:        8,
		minConns:        0,
		maxConnLifetime: time.Hour,
		maxConnIdleTime: 5 * time.Minute,
	}
}

// WithPoolSize overrides the default Postgres connection pool bounds.
// Ignored by NewMemoryStore, since it never opens a pool.
func WithPoolSize(minConns, maxConns int32, maxConnLifetime, maxConnIdleTime time.Duration) Option {
	return func(s *Store) {
		s.poolConfig = poolConfig{
			maxConns:        maxConns,
			minConns:        minConns,
			maxConnLifetime: maxConnLifetime,
			maxConnIdleTime: maxConnIdleTime,
		}
	}
}

func newStoreShell(pool *pgxpool.Pool, weakMode bool, opts []Option) *Store {
	s := &Store{pool: pool, poolConfig: defaultPoolConfig()}
	if weakMode {
		s.systemPrompts = newWeakCache[assets.SystemPrompt]()
		s.messages = newWeakCache[conversation.Message]()
		s.conversations = newWeakCache[conversation.Conversation]()
		s.agents = newWeakCache[agent.Agent]()
	} else {
		s.systemPrompts = newStrongCache[assets.SystemPrompt]()
		s.messages = newStrongCache[conversation.Message]()
		s.conversations = newStrongCache[conversation.Conversation]()
		s.agents = newStrongCache[agent.Agent]()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewMemoryStore returns a Store with no database: every asset lives only
// in the strong-reference cache until the process exits. GC is a no-op.
func NewMemoryStore(opts ...Option) *Store {
	return newStoreShell(nil, false, opts)
}

// Connect opens a Postgres connection pool and returns a Store backed by
// it, pinging with a 3s timeout the same way
// internal/persistence/databases/factory.go's newPgPool does. Pool bounds
// default to the teacher's 8 max / 0 min / 1h lifetime / 5m idle and can
// be overridden with WithPoolSize.
func Connect(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	// Options are applied twice: once here (pool-sizing options only
	// affect this shell, whose pool field is still nil) to learn the
	// caller's pool bounds before pgxpool.NewWithConfig runs, then again
	// inside newStoreShell against the real store once the pool exists.
	sizing := &Store{poolConfig: defaultPoolConfig()}
	for _, opt := range opts {
		opt(sizing)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	cfg.MaxConns = sizing.poolConfig.maxConns
	cfg.MinConns = sizing.poolConfig.minConns
	cfg.MaxConnLifetime = sizing.poolConfig.maxConnLifetime
	cfg.MaxConnIdleTime = sizing.poolConfig.maxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return newStoreShell(pool, true, opts), nil
}

// InitSchema creates the four asset tables if they don't already exist.
// No-op in memory mode.
func (s *Store) InitSchema(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close releases the connection pool, if any.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ClearCache drops every cached asset. Postgres mode can always re-fetch
// from the database; memory mode loses everything not otherwise
// referenced, since the cache is its only storage.
func (s *Store) ClearCache() {
	s.systemPrompts.clear()
	s.messages.clear()
	s.conversations.clear()
	s.agents.clear()
}

// -- cache-then-db loads --

func (s *Store) getSystemPrompt(ctx context.Context, id uuid.UUID) (*assets.SystemPrompt, error) {
	if v, ok := s.systemPrompts.get(id); ok {
		return &v, nil
	}
	if s.pool == nil {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx, `SELECT id, created_at, content FROM text_assets WHERE id = $1`, id)
	var sp assets.SystemPrompt
	if err := row.Scan(&sp.ID, &sp.CreatedAt, &sp.Content); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	s.systemPrompts.put(sp.ID, sp)
	return &sp, nil
}

func scanMessage(row pgx.Row) (conversation.Message, error) {
	var m conversation.Message
	var toolCallsRaw []byte
	if err := row.Scan(&m.ID, &m.CreatedAt, &m.Role, &m.Content, &toolCallsRaw, &m.ToolCallID, &m.InputTokens, &m.OutputTokens); err != nil {
		return conversation.Message{}, err
	}
	if len(toolCallsRaw) > 0 {
		if err := json.Unmarshal(toolCallsRaw, &m.ToolCalls); err != nil {
			return conversation.Message{}, err
		}
	}
	return m, nil
}

// getMessages resolves every ID in order, batching the Postgres fetch for
// whatever wasn't already cached, and fails with MessageNotFoundError if
// any ID resolves to nothing — mirroring store.py's _get_messages.
func (s *Store) getMessages(ctx context.Context, ids []uuid.UUID) ([]conversation.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byID := map[uuid.UUID]conversation.Message{}
	var toLoad []uuid.UUID
	for _, id := range ids {
		if v, ok := s.messages.get(id); ok {
			byID[id] = v
		} else {
			toLoad = append(toLoad, id)
		}
	}
	if len(toLoad) > 0 && s.pool != nil {
		rows, err := s.pool.Query(ctx, `SELECT id, created_at, role, content, tool_calls, tool_call_id, input_tokens, output_tokens FROM messages WHERE id = ANY($1)`, toLoad)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			s.messages.put(m.ID, m)
			byID[m.ID] = m
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	out := make([]conversation.Message, 0, len(ids))
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			return nil, immerr.NewMessageNotFoundError(id)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) getConversation(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	if v, ok := s.conversations.get(id); ok {
		return &v, nil
	}
	if s.pool == nil {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx, `SELECT id, created_at, message_ids FROM conversations WHERE id = $1`, id)
	var c conversation.Conversation
	if err := row.Scan(&c.ID, &c.CreatedAt, &c.MessageIDs); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	s.conversations.put(c.ID, c)
	return &c, nil
}

func scanAgent(row pgx.Row) (agent.Agent, error) {
	var a agent.Agent
	var metaRaw, cfgRaw []byte
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.Name, &a.SystemPromptID, &a.ParentID, &a.ConversationID, &a.Model, &metaRaw, &cfgRaw); err != nil {
		return agent.Agent{}, err
	}
	if len(metaRaw) > 0 {
		_ = json.Unmarshal(metaRaw, &a.Metadata)
	}
	if len(cfgRaw) > 0 {
		_ = json.Unmarshal(cfgRaw, &a.ModelConfig)
	}
	return a, nil
}

const agentColumns = `id, created_at, name, system_prompt_id, parent_id, conversation_id, model, metadata, model_config`

func (s *Store) getAgent(ctx context.Context, id uuid.UUID) (*agent.Agent, error) {
	if v, ok := s.agents.get(id); ok {
		return &v, nil
	}
	if s.pool == nil {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	a, err := scanAgent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	s.agents.put(a.ID, a)
	return &a, nil
}

// -- save cascade --

// save persists a (the agent at the root of this turn's changes) and,
// transitively, whichever of its dependencies — system prompt,
// conversation, conversation's messages — are sitting in cache, in
// FK-safe order, in a single transaction. Grounded exactly on store.py's
// _save/_save_one: every real caller in this package only ever saves one
// agent at a time, so unlike the original's variadic signature this takes
// a single root asset rather than *assets_to_save.
func (s *Store) save(ctx context.Context, a agent.Agent) error {
	type pending struct {
		systemPrompt *assets.SystemPrompt
		messages     []conversation.Message
		conv         *conversation.Conversation
	}
	var p pending
	if sp, ok := s.systemPrompts.get(a.SystemPromptID); ok {
		p.systemPrompt = &sp
	}
	if conv, ok := s.conversations.get(a.ConversationID); ok {
		for _, mid := range conv.MessageIDs {
			if m, ok := s.messages.get(mid); ok {
				p.messages = append(p.messages, m)
			}
		}
		p.conv = &conv
	}

	if s.pool != nil {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if p.systemPrompt != nil {
			if err := insertSystemPrompt(ctx, tx, *p.systemPrompt); err != nil {
				return err
			}
		}
		for _, m := range p.messages {
			if err := insertMessage(ctx, tx, m); err != nil {
				return err
			}
		}
		if p.conv != nil {
			if err := insertConversation(ctx, tx, *p.conv); err != nil {
				return err
			}
		}
		if err := insertAgent(ctx, tx, a); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	if p.systemPrompt != nil {
		s.systemPrompts.put(p.systemPrompt.ID, *p.systemPrompt)
	}
	for _, m := range p.messages {
		s.messages.put(m.ID, m)
	}
	if p.conv != nil {
		s.conversations.put(p.conv.ID, *p.conv)
	}
	s.agents.put(a.ID, a)
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
}

func insertSystemPrompt(ctx context.Context, tx execer, sp assets.SystemPrompt) error {
	_, err := tx.Exec(ctx, `INSERT INTO text_assets (id, created_at, content) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		sp.ID, sp.CreatedAt, sp.Content)
	return err
}

func insertMessage(ctx context.Context, tx execer, m conversation.Message) error {
	var toolCallsJSON []byte
	if len(m.ToolCalls) > 0 {
		b, err := json.Marshal(m.ToolCalls)
		if err != nil {
			return err
		}
		toolCallsJSON = b
	}
	_, err := tx.Exec(ctx, `
INSERT INTO messages (id, created_at, role, content, tool_calls, tool_call_id, input_tokens, output_tokens)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`,
		m.ID, m.CreatedAt, m.Role, m.Content, toolCallsJSON, m.ToolCallID, m.InputTokens, m.OutputTokens)
	return err
}

func insertConversation(ctx context.Context, tx execer, c conversation.Conversation) error {
	_, err := tx.Exec(ctx, `INSERT INTO conversations (id, created_at, message_ids) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		c.ID, c.CreatedAt, c.MessageIDs)
	return err
}

func insertAgent(ctx context.Context, tx execer, a agent.Agent) error {
	meta := a.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	cfg := a.ModelConfig
	if cfg == nil {
		cfg = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO agents (id, created_at, name, system_prompt_id, parent_id, conversation_id, model, metadata, model_config)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`,
		a.ID, a.CreatedAt, a.Name, a.SystemPromptID, a.ParentID, a.ConversationID, a.Model, metaJSON, cfgJSON)
	return err
}
