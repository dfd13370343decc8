package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/kgk9000/immagent/agent"
	"github.com/kgk9000/immagent/assets"
	"github.com/kgk9000/immagent/conversation"
	"github.com/kgk9000/immagent/immerr"
)

// CreateAgent validates name/systemPrompt/model, builds a fresh system
// prompt, an empty conversation, and a root Agent, caches all three, and
// saves them — grounded on store.py's create_agent, which populates the
// cache before calling _save since _save resolves the agent's dependencies
// by looking them up there.
func (s *Store) CreateAgent(ctx context.Context, name, systemPrompt, model string, metadata, modelConfig map[string]any) (*agent.Agent, error) {
	if err := agent.Validate(name, systemPrompt, model); err != nil {
		return nil, err
	}
	sp, err := assets.NewSystemPrompt(systemPrompt)
	if err != nil {
		return nil, err
	}
	conv := conversation.NewConversation()
	a := agent.New(name, sp.ID, conv.ID, model, metadata, modelConfig)

	s.systemPrompts.put(sp.ID, sp)
	s.conversations.put(conv.ID, conv)
	s.agents.put(a.ID, a)

	if err := s.save(ctx, a); err != nil {
		return nil, err
	}
	agent.Register(&a, s)
	return &a, nil
}

// LoadAgent resolves a single agent by ID, cache first then database.
func (s *Store) LoadAgent(ctx context.Context, id uuid.UUID) (*agent.Agent, error) {
	a, err := s.getAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, immerr.NewAgentNotFoundError(id)
	}
	agent.Register(a, s)
	return a, nil
}

// LoadAgents resolves every ID in one batch rather than one round-trip per
// ID — grounded on store.py's load_agents ("More efficient than calling
// load_agent() multiple times"), which issues a single WHERE id = ANY($1)
// query for whatever the cache doesn't already have. Order follows ids;
// AgentNotFoundError on the first ID that resolves to nothing.
func (s *Store) LoadAgents(ctx context.Context, ids []uuid.UUID) ([]agent.Agent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byID := map[uuid.UUID]agent.Agent{}
	var toLoad []uuid.UUID
	for _, id := range ids {
		if a, ok := s.agents.get(id); ok {
			byID[id] = a
		} else {
			toLoad = append(toLoad, id)
		}
	}
	if len(toLoad) > 0 && s.pool != nil {
		rows, err := s.pool.Query(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ANY($1)`, toLoad)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			a, err := scanAgent(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			s.agents.put(a.ID, a)
			byID[a.ID] = a
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	out := make([]agent.Agent, 0, len(ids))
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return nil, immerr.NewAgentNotFoundError(id)
		}
		out = append(out, a)
	}
	for i := range out {
		agent.Register(&out[i], s)
	}
	return out, nil
}

// ListAgents returns up to limit agents (offset-paginated), optionally
// filtered by a substring of name, newest first. In memory mode this scans
// the cache directly; in Postgres mode it queries the table with
// created_at DESC and an ILIKE filter, matching store.py's dual-mode
// list_agents.
func (s *Store) ListAgents(ctx context.Context, nameContains string, limit, offset int) ([]agent.Agent, error) {
	if limit <= 0 {
		limit = 100
	}
	if s.pool == nil {
		all := s.agents.all()
		sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
		var filtered []agent.Agent
		for _, a := range all {
			if nameContains == "" || strings.Contains(strings.ToLower(a.Name), strings.ToLower(nameContains)) {
				filtered = append(filtered, a)
			}
		}
		if offset >= len(filtered) {
			return nil, nil
		}
		end := offset + limit
		if end > len(filtered) {
			end = len(filtered)
		}
		out := make([]agent.Agent, len(filtered[offset:end]))
		copy(out, filtered[offset:end])
		for i := range out {
			agent.Register(&out[i], s)
		}
		return out, nil
	}

	query := `SELECT ` + agentColumns + ` FROM agents`
	args := []any{}
	if nameContains != "" {
		query += ` WHERE name ILIKE $1`
		args = append(args, "%"+nameContains+"%")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		if cached, ok := s.agents.get(a.ID); ok {
			a = cached
		} else {
			s.agents.put(a.ID, a)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		agent.Register(&out[i], s)
	}
	return out, nil
}

// CountAgents mirrors ListAgents' filter but returns a row count instead
// of the rows themselves.
func (s *Store) CountAgents(ctx context.Context, nameContains string) (int, error) {
	if s.pool == nil {
		n := 0
		for _, a := range s.agents.all() {
			if nameContains == "" || strings.Contains(strings.ToLower(a.Name), strings.ToLower(nameContains)) {
				n++
			}
		}
		return n, nil
	}
	query := `SELECT COUNT(*) FROM agents`
	var args []any
	if nameContains != "" {
		query += ` WHERE name ILIKE $1`
		args = append(args, "%"+nameContains+"%")
	}
	var count int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// FindByName returns every agent with an exact (case-sensitive) name
// match, newest first — store.py's find_by_name, unlike ListAgents'
// substring filter. An empty result is not an error.
func (s *Store) FindByName(ctx context.Context, name string) ([]agent.Agent, error) {
	if s.pool == nil {
		var out []agent.Agent
		for _, a := range s.agents.all() {
			if a.Name == name {
				out = append(out, a)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
		for i := range out {
			agent.Register(&out[i], s)
		}
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+agentColumns+` FROM agents WHERE name = $1 ORDER BY created_at DESC`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		if cached, ok := s.agents.get(a.ID); ok {
			a = cached
		} else {
			s.agents.put(a.ID, a)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		agent.Register(&out[i], s)
	}
	return out, nil
}

// Delete removes only the agents row with the given ID. Descendants keep
// existing with their parent_id set to NULL by the schema's ON DELETE SET
// NULL — deleting one agent never cascades to its lineage. In memory mode
// the agent is only evicted from the cache; cached descendants are left
// untouched and their ParentID still names the deleted agent.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	s.agents.delete(id)
	if s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	return err
}

// Clone returns a sibling of a: same ParentID, system prompt, conversation,
// and model, but a new ID — grounded on store.py's _clone_agent.
func (s *Store) Clone(ctx context.Context, a agent.Agent) (*agent.Agent, error) {
	clone := a.Clone()
	s.agents.put(clone.ID, clone)
	if err := s.save(ctx, clone); err != nil {
		return nil, err
	}
	agent.Register(&clone, s)
	return &clone, nil
}

// UpdateMetadata returns a child of a (ParentID == a.ID) whose metadata is
// replaced wholesale — grounded on store.py's _update_metadata.
func (s *Store) UpdateMetadata(ctx context.Context, a agent.Agent, metadata map[string]any) (*agent.Agent, error) {
	updated := a.WithMetadata(metadata)
	s.agents.put(updated.ID, updated)
	if err := s.save(ctx, updated); err != nil {
		return nil, err
	}
	agent.Register(&updated, s)
	return &updated, nil
}

// GetMessages loads every message in a's conversation, in order —
// store.py's _get_agent_messages.
func (s *Store) GetMessages(ctx context.Context, a agent.Agent) ([]conversation.Message, error) {
	conv, err := s.getConversation(ctx, a.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, immerr.NewConversationNotFoundError(a.ConversationID)
	}
	return s.getMessages(ctx, conv.MessageIDs)
}
