// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metastore

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	vault    TEXT    NOT NULL,
	path     TEXT    NOT NULL,
	parent   TEXT    NOT NULL,
	kind     INTEGER NOT NULL,
	size     INTEGER NOT NULL,
	version  INTEGER NOT NULL,
	sequence INTEGER NOT NULL,
	content  TEXT    NOT NULL DEFAULT '',
	modified INTEGER NOT NULL,
	deleted  INTEGER NOT NULL DEFAULT 0,
	stale    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (vault, path)
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS entries_by_parent ON entries (vault, parent, path);
CREATE INDEX IF NOT EXISTS entries_by_sequence ON entries (vault, sequence);

CREATE TABLE IF NOT EXISTS vault_state (
	vault    TEXT PRIMARY KEY,
	epoch    TEXT    NOT NULL,
	sequence INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cursors (
	vault    TEXT PRIMARY KEY,
	epoch    TEXT    NOT NULL,
	sequence INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox (
	vault    TEXT    NOT NULL,
	sequence INTEGER NOT NULL,
	path     TEXT    NOT NULL,
	PRIMARY KEY (vault, sequence)
);

CREATE TABLE IF NOT EXISTS push_marks (
	peer     TEXT    NOT NULL,
	vault    TEXT    NOT NULL,
	sequence INTEGER NOT NULL,
	PRIMARY KEY (peer, vault)
);

CREATE TABLE IF NOT EXISTS conflicts (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	vault          TEXT    NOT NULL,
	path           TEXT    NOT NULL,
	winner_version INTEGER NOT NULL,
	winner_content TEXT    NOT NULL,
	loser_version  INTEGER NOT NULL,
	loser_content  TEXT    NOT NULL,
	loser_deleted  INTEGER NOT NULL,
	recorded       INTEGER NOT NULL
);
`

const entryColumns = `vault, path, kind, size, version, sequence, content, modified, deleted, stale`
