package store

// schema contains the profilewatch tables. They live next to the whatsmeow
// device tables in the same database.
//
// Tables:
//   - pw_contacts - tracked contacts and their latest business details
//   - pw_baselines - last known avatar and status per contact
//   - pw_avatar_history - replaced avatars, append-only
//   - pw_status_history - status transitions, append-only
//   - pw_presence_log - online/offline samples, append-only
//
// Timestamps are unix milliseconds.
const schema = `
CREATE TABLE IF NOT EXISTS pw_contacts (
    phone TEXT PRIMARY KEY,
    jid TEXT NOT NULL,
    display_name TEXT,
    username TEXT,

    -- Business profile
    is_business INTEGER NOT NULL DEFAULT 0,
    business_name TEXT,
    business_email TEXT,
    business_address TEXT,
    business_categories TEXT,

    -- Presence
    is_online INTEGER NOT NULL DEFAULT 0,
    last_seen INTEGER,

    -- Checks
    last_checked_at INTEGER,
    last_error TEXT,

    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pw_baselines (
    phone TEXT PRIMARY KEY REFERENCES pw_contacts(phone) ON DELETE CASCADE,

    avatar_state TEXT NOT NULL DEFAULT 'unrecorded'
        CHECK (avatar_state IN ('unrecorded', 'absent', 'present')),
    avatar_ref TEXT,
    avatar_hash TEXT,
    avatar_full_ref TEXT,
    avatar_full_hash TEXT,

    status_state TEXT NOT NULL DEFAULT 'unrecorded'
        CHECK (status_state IN ('unrecorded', 'absent', 'present')),
    status_text TEXT,

    updated_at INTEGER NOT NULL,

    CHECK (avatar_state != 'present' OR (avatar_ref IS NOT NULL AND avatar_hash IS NOT NULL))
);

CREATE TABLE IF NOT EXISTS pw_avatar_history (
    id TEXT PRIMARY KEY,
    phone TEXT NOT NULL REFERENCES pw_contacts(phone) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    prev_state TEXT NOT NULL CHECK (prev_state IN ('absent', 'present')),
    prev_ref TEXT,
    prev_hash TEXT,
    prev_full_ref TEXT,
    prev_full_hash TEXT,
    replaced_at INTEGER NOT NULL,
    UNIQUE (phone, seq)
);

CREATE TABLE IF NOT EXISTS pw_status_history (
    id TEXT PRIMARY KEY,
    phone TEXT NOT NULL REFERENCES pw_contacts(phone) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    prev_state TEXT NOT NULL CHECK (prev_state IN ('absent', 'present')),
    prev_text TEXT,
    cur_state TEXT NOT NULL CHECK (cur_state IN ('absent', 'present')),
    cur_text TEXT,
    changed_at INTEGER NOT NULL,
    UNIQUE (phone, seq)
);

CREATE TABLE IF NOT EXISTS pw_presence_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    phone TEXT NOT NULL REFERENCES pw_contacts(phone) ON DELETE CASCADE,
    signal TEXT NOT NULL CHECK (signal IN ('online', 'offline')),
    observed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pw_presence_phone ON pw_presence_log(phone, id);
`
