package store

const schemaSQL = `
-- Shared room log
CREATE TABLE IF NOT EXISTS public_messages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  sender TEXT NOT NULL,
  text TEXT NOT NULL DEFAULT '',
  attachment_url TEXT,
  attachment_type TEXT,
  attachment_name TEXT,
  reply_to_id INTEGER,               -- public_messages.id, not enforced
  created_at INTEGER NOT NULL        -- unix ms
);

-- Direct messages, keyed by the sorted pair of participants
CREATE TABLE IF NOT EXISTS private_messages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  pair_key TEXT NOT NULL,            -- "alice|bob"
  sender TEXT NOT NULL,
  recipient TEXT NOT NULL,
  text TEXT NOT NULL DEFAULT '',
  attachment_url TEXT,
  attachment_type TEXT,
  attachment_name TEXT,
  reply_to_id INTEGER,
  created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_private_messages_pair ON private_messages(pair_key, id);
CREATE INDEX IF NOT EXISTS idx_private_messages_recipient ON private_messages(recipient);
CREATE INDEX IF NOT EXISTS idx_private_messages_sender ON private_messages(sender);

-- One row per (message, scope, identity, emoji); toggles insert/delete
CREATE TABLE IF NOT EXISTS reactions (
  message_id INTEGER NOT NULL,
  scope TEXT NOT NULL,               -- 'public' | 'private'
  identity TEXT NOT NULL,
  emoji TEXT NOT NULL,
  reacted_at INTEGER NOT NULL,
  UNIQUE (message_id, scope, identity, emoji)
);

CREATE INDEX IF NOT EXISTS idx_reactions_message ON reactions(scope, message_id);

-- Last private message id each identity has read per conversation
CREATE TABLE IF NOT EXISTS read_markers (
  identity TEXT NOT NULL,
  pair_key TEXT NOT NULL,
  last_read_id INTEGER NOT NULL,
  PRIMARY KEY (identity, pair_key)
);

-- Out-of-band notices (mentions, direct messages)
CREATE TABLE IF NOT EXISTS notifications (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  kind TEXT NOT NULL,
  target TEXT NOT NULL,
  from_identity TEXT NOT NULL,
  text TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_target ON notifications(target, id);
`
