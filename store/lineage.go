package store

import (
	"context"

	"github.com/kgk9000/immagent/agent"
	"github.com/kgk9000/immagent/immerr"
)

// Lineage returns the chain of agents from the root ancestor down to a
// itself, root first. Memory mode walks parent_id pointers one at a time
// via the cache; Postgres mode uses a recursive CTE and reverses the
// child-first result it gets back — both grounded on store.py's
// _get_agent_lineage.
func (s *Store) Lineage(ctx context.Context, a agent.Agent) ([]agent.Agent, error) {
	if s.pool == nil {
		chain := []agent.Agent{a}
		cur := a
		for cur.ParentID != nil {
			parent, ok := s.agents.get(*cur.ParentID)
			if !ok {
				return nil, immerr.NewAgentNotFoundError(*cur.ParentID)
			}
			chain = append(chain, parent)
			cur = parent
		}
		reverseAgents(chain)
		return chain, nil
	}

	rows, err := s.pool.Query(ctx, `
WITH RECURSIVE lineage AS (
    SELECT `+agentColumns+` FROM agents WHERE id = $1
    UNION ALL
    SELECT a.id, a.created_at, a.name, a.system_prompt_id, a.parent_id, a.conversation_id, a.model, a.metadata, a.model_config
    FROM agents a
    INNER JOIN lineage l ON a.id = l.parent_id
)
SELECT `+agentColumns+` FROM lineage`, a.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chain []agent.Agent
	for rows.Next() {
		row, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		if cached, ok := s.agents.get(row.ID); ok {
			row = cached
		} else {
			s.agents.put(row.ID, row)
		}
		chain = append(chain, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, immerr.NewAgentNotFoundError(a.ID)
	}
	reverseAgents(chain)
	for i := range chain {
		agent.Register(&chain[i], s)
	}
	return chain, nil
}

func reverseAgents(a []agent.Agent) {
	for i, j := 0, len(a)-1; i < j; i, j = i+1, j-1 {
		a[i], a[j] = a[j], a[i]
	}
}
