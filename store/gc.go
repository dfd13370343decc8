package store

import "context"

// GCResult reports how many rows of each orphaned kind were reclaimed.
type GCResult struct {
	TextAssetsDeleted  int
	ConversationsDeleted int
	MessagesDeleted    int
}

// GC reclaims text_assets, conversations, and messages no longer
// referenced by any surviving agent, in that order, inside a single
// transaction — grounded on store.py's gc. Agents rows are never deleted
// by GC; a memory-mode store has nothing to reclaim and always returns a
// zero result.
func (s *Store) GC(ctx context.Context) (GCResult, error) {
	if s.pool == nil {
		return GCResult{}, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return GCResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var result GCResult

	rows, err := tx.Query(ctx, `
DELETE FROM text_assets
WHERE id NOT IN (SELECT system_prompt_id FROM agents)
RETURNING id`)
	if err != nil {
		return GCResult{}, err
	}
	result.TextAssetsDeleted, err = countRows(rows)
	if err != nil {
		return GCResult{}, err
	}

	rows, err = tx.Query(ctx, `
DELETE FROM conversations
WHERE id NOT IN (SELECT conversation_id FROM agents)
RETURNING id`)
	if err != nil {
		return GCResult{}, err
	}
	result.ConversationsDeleted, err = countRows(rows)
	if err != nil {
		return GCResult{}, err
	}

	rows, err = tx.Query(ctx, `
DELETE FROM messages
WHERE id NOT IN (SELECT unnest(message_ids) FROM conversations)
RETURNING id`)
	if err != nil {
		return GCResult{}, err
	}
	result.MessagesDeleted, err = countRows(rows)
	if err != nil {
		return GCResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return GCResult{}, err
	}
	return result, nil
}

type rowser interface {
	Next() bool
	Err() error
	Close()
}

func countRows(rows rowser) (int, error) {
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}
