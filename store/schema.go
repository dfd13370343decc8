package store

// schema is the Postgres DDL for the four asset tables, lifted in shape
// from original_source/src/immagent/store.py's SCHEMA constant. parent_id
// uses ON DELETE SET NULL rather than CASCADE or RESTRICT: deleting an
// agent (Store.Delete) must never cascade into deleting its descendants,
// and must never be blocked by having descendants either — it orphans
// them at the root the same way git leaves a dangling commit when its
// parent is pruned. GC never removes rows from agents at all, only the
// text_assets/conversations/messages rows no surviving agent references.
const schema = `
CREATE TABLE IF NOT EXISTS text_assets (
    id UUID PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL,
    content TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id UUID PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL,
    role TEXT NOT NULL,
    content TEXT,
    tool_calls JSONB,
    tool_call_id TEXT,
    input_tokens INTEGER,
    output_tokens INTEGER
);

CREATE TABLE IF NOT EXISTS conversations (
    id UUID PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL,
    message_ids UUID[] NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
    id UUID PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL,
    name TEXT NOT NULL,
    system_prompt_id UUID NOT NULL REFERENCES text_assets(id),
    parent_id UUID REFERENCES agents(id) ON DELETE SET NULL,
    conversation_id UUID NOT NULL REFERENCES conversations(id),
    model TEXT NOT NULL,
    metadata JSONB NOT NULL DEFAULT '{}',
    model_config JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_agents_parent_id ON agents(parent_id);
CREATE INDEX IF NOT EXISTS idx_agents_conversation_id ON agents(conversation_id);
CREATE INDEX IF NOT EXISTS idx_agents_name ON agents(name);
`
