// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metastore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/monovault/lib/sqlitepool"
	"github.com/bureau-foundation/monovault/lib/vault"
)

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the SQLite database file. The parent directory must
	// exist.
	Path string

	// PoolSize is the number of connections. Zero uses the pool
	// default.
	PoolSize int

	Logger *slog.Logger
}

// Store is the metadata store. It is safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Mutation is one path change within a [Store.Commit]. Expected is
// the version the caller read (0 when the path had no record); the
// committed entry gets Expected+1.
type Mutation struct {
	Path     string
	Expected uint64
	Kind     vault.Kind
	Size     int64
	Content  string
	Modified time.Time
	Deleted  bool
}

// Cursor is the sync position within a remote vault's history.
type Cursor struct {
	Epoch    string `cbor:"epoch"`
	Sequence uint64 `cbor:"sequence"`
}

// Change is one outbox row: a local path mutated at a sequence.
type Change struct {
	Vault    string
	Sequence uint64
	Path     string
}

// Conflict is an audit record of a version that lost resolution.
type Conflict struct {
	Vault    string
	Path     string
	Winner   vault.Entry
	Loser    vault.Entry
	Recorded time.Time
}

// Open opens (creating if necessary) the store at cfg.Path.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Schema:   schema,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("metastore: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Get returns the live entry at (vaultName, path). Tombstones are
// reported as vault.ErrNotFound.
func (s *Store) Get(ctx context.Context, vaultName, path string) (vault.Entry, error) {
	entry, _, err := s.Lookup(ctx, vaultName, path)
	return entry, err
}

// Lookup is Get plus the entry's staleness flag.
func (s *Store) Lookup(ctx context.Context, vaultName, path string) (vault.Entry, bool, error) {
	entry, stale, err := s.record(ctx, vaultName, path)
	if err != nil {
		return vault.Entry{}, false, err
	}
	if entry.Deleted {
		return vault.Entry{}, false, fmt.Errorf("%s: %w", vault.Join(vaultName, path), vault.ErrNotFound)
	}
	return entry, stale, nil
}

// Record returns the entry at (vaultName, path) including tombstones.
func (s *Store) Record(ctx context.Context, vaultName, path string) (vault.Entry, error) {
	entry, _, err := s.record(ctx, vaultName, path)
	return entry, err
}

func (s *Store) record(ctx context.Context, vaultName, path string) (entry vault.Entry, stale bool, err error) {
	err = s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		found, fetchErr := fetchEntry(conn, vaultName, path, &entry, &stale)
		if fetchErr != nil {
			return fetchErr
		}
		if !found {
			return fmt.Errorf("%s: %w", vault.Join(vaultName, path), vault.ErrNotFound)
		}
		return nil
	})
	if err != nil && !errors.Is(err, vault.ErrNotFound) {
		err = fmt.Errorf("metastore: reading %s: %w", vault.Join(vaultName, path), err)
	}
	return entry, stale, err
}

// Commit applies mutations to vaultName atomically. Each mutation is
// checked against the current record version; any mismatch aborts the
// whole batch with vault.ErrConflict. Committed entries receive the
// next vault sequence numbers in order, and each is appended to the
// outbox in the same transaction.
func (s *Store) Commit(ctx context.Context, vaultName string, mutations []Mutation) (committed []vault.Entry, err error) {
	if len(mutations) == 0 {
		return nil, nil
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("metastore: commit: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("metastore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	state, err := ensureState(conn, vaultName)
	if err != nil {
		return nil, err
	}

	committed = make([]vault.Entry, 0, len(mutations))
	for _, mutation := range mutations {
		var current vault.Entry
		var stale bool
		found, err := fetchEntry(conn, vaultName, mutation.Path, &current, &stale)
		if err != nil {
			return nil, fmt.Errorf("metastore: commit: %w", err)
		}
		var currentVersion uint64
		if found {
			currentVersion = current.Version
		}
		if currentVersion != mutation.Expected {
			return nil, fmt.Errorf("%s: expected version %d, found %d: %w",
				vault.Join(vaultName, mutation.Path), mutation.Expected, currentVersion, vault.ErrConflict)
		}

		state.sequence++
		entry := vault.Entry{
			Vault:    vaultName,
			Path:     mutation.Path,
			Kind:     mutation.Kind,
			Size:     mutation.Size,
			Version:  mutation.Expected + 1,
			Sequence: state.sequence,
			Content:  mutation.Content,
			Modified: mutation.Modified,
			Deleted:  mutation.Deleted,
		}
		if err := writeEntry(conn, &entry); err != nil {
			return nil, err
		}
		if err := sqlitex.Execute(conn,
			`INSERT INTO outbox (vault, sequence, path) VALUES (?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{vaultName, int64(entry.Sequence), entry.Path}},
		); err != nil {
			return nil, fmt.Errorf("metastore: appending outbox: %w", err)
		}
		committed = append(committed, entry)
	}

	if err := sqlitex.Execute(conn,
		`UPDATE vault_state SET sequence = ? WHERE vault = ?`,
		&sqlitex.ExecOptions{Args: []any{int64(state.sequence), vaultName}},
	); err != nil {
		return nil, fmt.Errorf("metastore: advancing sequence: %w", err)
	}
	return committed, nil
}

// Put commits a single mutation.
func (s *Store) Put(ctx context.Context, vaultName string, mutation Mutation) (vault.Entry, error) {
	committed, err := s.Commit(ctx, vaultName, []Mutation{mutation})
	if err != nil {
		return vault.Entry{}, err
	}
	return committed[0], nil
}

// Upsert stores a replicated entry verbatim, keeping its origin
// version and sequence. accept receives the current record (nil when
// absent) inside the transaction and decides whether the write
// happens. The stored entry is marked fresh.
func (s *Store) Upsert(ctx context.Context, entry vault.Entry, accept func(existing *vault.Entry) bool) (applied bool, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("metastore: upsert: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return false, fmt.Errorf("metastore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	var current vault.Entry
	var stale bool
	found, err := fetchEntry(conn, entry.Vault, entry.Path, &current, &stale)
	if err != nil {
		return false, fmt.Errorf("metastore: upsert: %w", err)
	}
	var existing *vault.Entry
	if found {
		existing = &current
	}
	if !accept(existing) {
		return false, nil
	}
	if err := writeEntry(conn, &entry); err != nil {
		return false, err
	}
	return true, nil
}

// ListChildren yields the live entries whose parent is dir, ordered
// by path. The sequence holds a pooled connection until iteration
// stops.
func (s *Store) ListChildren(ctx context.Context, vaultName, dir string) iter.Seq2[vault.Entry, error] {
	return func(yield func(vault.Entry, error) bool) {
		conn, err := s.pool.Take(ctx)
		if err != nil {
			yield(vault.Entry{}, fmt.Errorf("metastore: list: %w", err))
			return
		}
		defer s.pool.Put(conn)

		stmt, err := conn.Prepare(`SELECT ` + entryColumns + ` FROM entries
			WHERE vault = $vault AND parent = $parent AND path != '' AND deleted = 0
			ORDER BY path`)
		if err != nil {
			yield(vault.Entry{}, fmt.Errorf("metastore: list: %w", err))
			return
		}
		defer func() {
			stmt.Reset()
			stmt.ClearBindings()
		}()
		stmt.SetText("$vault", vaultName)
		stmt.SetText("$parent", dir)

		for {
			hasRow, err := stmt.Step()
			if err != nil {
				yield(vault.Entry{}, fmt.Errorf("metastore: list %s: %w", vault.Join(vaultName, dir), err))
				return
			}
			if !hasRow {
				return
			}
			var entry vault.Entry
			var stale bool
			scanEntry(stmt, &entry, &stale)
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// HasChildren reports whether dir has any live child.
func (s *Store) HasChildren(ctx context.Context, vaultName, dir string) (bool, error) {
	var exists bool
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT 1 FROM entries WHERE vault = ? AND parent = ? AND path != '' AND deleted = 0 LIMIT 1`,
			&sqlitex.ExecOptions{
				Args: []any{vaultName, dir},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					exists = true
					return nil
				},
			})
	})
	if err != nil {
		return false, fmt.Errorf("metastore: checking children of %s: %w", vault.Join(vaultName, dir), err)
	}
	return exists, nil
}

// Descendants returns every record (tombstones included) strictly
// beneath dir.
func (s *Store) Descendants(ctx context.Context, vaultName, dir string) ([]vault.Entry, error) {
	var entries []vault.Entry
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+entryColumns+` FROM entries WHERE vault = ? AND path > ? AND path < ? ORDER BY path`,
			&sqlitex.ExecOptions{
				// '0' follows '/' in byte order, so the range is exactly
				// the paths prefixed by dir + "/".
				Args: []any{vaultName, dir + "/", dir + "0"},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					var entry vault.Entry
					var stale bool
					scanEntry(stmt, &entry, &stale)
					entries = append(entries, entry)
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("metastore: listing beneath %s: %w", vault.Join(vaultName, dir), err)
	}
	return entries, nil
}

// Remove hard-deletes the record at (vaultName, path), tombstone or
// not. Removing an absent path is not an error.
func (s *Store) Remove(ctx context.Context, vaultName, path string) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("metastore: remove: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("metastore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err := sqlitex.Execute(conn, `DELETE FROM entries WHERE vault = ? AND path = ?`,
		&sqlitex.ExecOptions{Args: []any{vaultName, path}}); err != nil {
		return fmt.Errorf("metastore: removing %s: %w", vault.Join(vaultName, path), err)
	}
	return nil
}

// ForgetVault deletes every record and the sync cursor of vaultName.
func (s *Store) ForgetVault(ctx context.Context, vaultName string) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("metastore: forget vault: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("metastore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for _, query := range []string{
		`DELETE FROM entries WHERE vault = ?`,
		`DELETE FROM cursors WHERE vault = ?`,
	} {
		if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: []any{vaultName}}); err != nil {
			return fmt.Errorf("metastore: forgetting %s: %w", vaultName, err)
		}
	}
	return nil
}

// Changes returns up to limit records of vaultName with a sequence
// above since, in sequence order. Tombstones are included so deletes
// propagate.
func (s *Store) Changes(ctx context.Context, vaultName string, since uint64, limit int) ([]vault.Entry, error) {
	var entries []vault.Entry
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+entryColumns+` FROM entries WHERE vault = ? AND sequence > ? AND path != ''
			ORDER BY sequence LIMIT ?`,
			&sqlitex.ExecOptions{
				Args: []any{vaultName, int64(since), limit},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					var entry vault.Entry
					var stale bool
					scanEntry(stmt, &entry, &stale)
					entries = append(entries, entry)
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("metastore: changes of %s since %d: %w", vaultName, since, err)
	}
	return entries, nil
}

// Sequence returns the last sequence committed to vaultName, or 0.
func (s *Store) Sequence(ctx context.Context, vaultName string) (uint64, error) {
	var sequence uint64
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT sequence FROM vault_state WHERE vault = ?`,
			&sqlitex.ExecOptions{
				Args: []any{vaultName},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					sequence = uint64(stmt.ColumnInt64(0))
					return nil
				},
			})
	})
	if err != nil {
		return 0, fmt.Errorf("metastore: sequence of %s: %w", vaultName, err)
	}
	return sequence, nil
}

// Epoch returns the identity of vaultName's history in this database,
// creating it on first use. A new database yields a new epoch, which
// tells peers their cursors no longer apply.
func (s *Store) Epoch(ctx context.Context, vaultName string) (epoch string, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", fmt.Errorf("metastore: epoch: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return "", fmt.Errorf("metastore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	state, err := ensureState(conn, vaultName)
	if err != nil {
		return "", err
	}
	return state.epoch, nil
}

// Cursor returns the sync cursor for a remote vault. The zero Cursor
// means nothing has been pulled.
func (s *Store) Cursor(ctx context.Context, vaultName string) (Cursor, error) {
	var cursor Cursor
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT epoch, sequence FROM cursors WHERE vault = ?`,
			&sqlitex.ExecOptions{
				Args: []any{vaultName},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					cursor.Epoch = stmt.ColumnText(0)
					cursor.Sequence = uint64(stmt.ColumnInt64(1))
					return nil
				},
			})
	})
	if err != nil {
		return Cursor{}, fmt.Errorf("metastore: cursor of %s: %w", vaultName, err)
	}
	return cursor, nil
}

// SetCursor stores the sync cursor for a remote vault.
func (s *Store) SetCursor(ctx context.Context, vaultName string, cursor Cursor) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("metastore: set cursor: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("metastore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err := sqlitex.Execute(conn,
		`INSERT INTO cursors (vault, epoch, sequence) VALUES (?, ?, ?)
		ON CONFLICT (vault) DO UPDATE SET epoch = excluded.epoch, sequence = excluded.sequence`,
		&sqlitex.ExecOptions{Args: []any{vaultName, cursor.Epoch, int64(cursor.Sequence)}},
	); err != nil {
		return fmt.Errorf("metastore: setting cursor of %s: %w", vaultName, err)
	}
	return nil
}

// Pending returns up to limit outbox rows of vaultName that peer has
// not been notified of, in sequence order.
func (s *Store) Pending(ctx context.Context, peer, vaultName string, limit int) ([]Change, error) {
	var changes []Change
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT sequence, path FROM outbox
			WHERE vault = ? AND sequence > COALESCE((SELECT sequence FROM push_marks WHERE peer = ? AND vault = ?), 0)
			ORDER BY sequence LIMIT ?`,
			&sqlitex.ExecOptions{
				Args: []any{vaultName, peer, vaultName, limit},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					changes = append(changes, Change{
						Vault:    vaultName,
						Sequence: uint64(stmt.ColumnInt64(0)),
						Path:     stmt.ColumnText(1),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("metastore: pending for %s: %w", peer, err)
	}
	return changes, nil
}

// MarkDelivered records that peer has been notified of every outbox
// row of vaultName up to sequence. Marks never move backwards.
func (s *Store) MarkDelivered(ctx context.Context, peer, vaultName string, sequence uint64) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("metastore: mark delivered: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("metastore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err := sqlitex.Execute(conn,
		`INSERT INTO push_marks (peer, vault, sequence) VALUES (?, ?, ?)
		ON CONFLICT (peer, vault) DO UPDATE SET sequence = max(sequence, excluded.sequence)`,
		&sqlitex.ExecOptions{Args: []any{peer, vaultName, int64(sequence)}},
	); err != nil {
		return fmt.Errorf("metastore: marking %s delivered to %d: %w", peer, sequence, err)
	}
	return nil
}

// PruneOutbox deletes the outbox rows of vaultName every listed peer
// has been notified of, returning how many were removed. A peer with
// no mark holds back the whole outbox.
func (s *Store) PruneOutbox(ctx context.Context, vaultName string, peers []string) (removed int, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("metastore: prune outbox: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("metastore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	var low uint64
	for index, peer := range peers {
		var mark uint64
		if err := sqlitex.Execute(conn, `SELECT sequence FROM push_marks WHERE peer = ? AND vault = ?`,
			&sqlitex.ExecOptions{
				Args: []any{peer, vaultName},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					mark = uint64(stmt.ColumnInt64(0))
					return nil
				},
			}); err != nil {
			return 0, fmt.Errorf("metastore: reading mark of %s: %w", peer, err)
		}
		if index == 0 || mark < low {
			low = mark
		}
	}
	if low == 0 {
		return 0, nil
	}
	if err := sqlitex.Execute(conn, `DELETE FROM outbox WHERE vault = ? AND sequence <= ?`,
		&sqlitex.ExecOptions{Args: []any{vaultName, int64(low)}}); err != nil {
		return 0, fmt.Errorf("metastore: pruning outbox: %w", err)
	}
	return conn.Changes(), nil
}

// MarkStale flags every entry of vaultName as stale. Data is kept.
func (s *Store) MarkStale(ctx context.Context, vaultName string) error {
	return s.setStale(ctx, vaultName, true)
}

// MarkFresh clears the stale flag on every entry of vaultName.
func (s *Store) MarkFresh(ctx context.Context, vaultName string) error {
	return s.setStale(ctx, vaultName, false)
}

func (s *Store) setStale(ctx context.Context, vaultName string, stale bool) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("metastore: set stale: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("metastore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err := sqlitex.Execute(conn, `UPDATE entries SET stale = ? WHERE vault = ? AND stale != ?`,
		&sqlitex.ExecOptions{Args: []any{boolInt(stale), vaultName, boolInt(stale)}}); err != nil {
		return fmt.Errorf("metastore: marking %s stale=%t: %w", vaultName, stale, err)
	}
	return nil
}

// HasStale reports whether any entry of vaultName is flagged stale.
func (s *Store) HasStale(ctx context.Context, vaultName string) (bool, error) {
	var stale bool
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT 1 FROM entries WHERE vault = ? AND stale = 1 LIMIT 1`,
			&sqlitex.ExecOptions{
				Args: []any{vaultName},
				ResultFunc: func(*sqlite.Stmt) error {
					stale = true
					return nil
				},
			})
	})
	if err != nil {
		return false, fmt.Errorf("metastore: staleness of %s: %w", vaultName, err)
	}
	return stale, nil
}

// References returns every content reference held by a live entry.
func (s *Store) References(ctx context.Context) (map[string]struct{}, error) {
	references := make(map[string]struct{})
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT DISTINCT content FROM entries WHERE deleted = 0 AND content != ''`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					references[stmt.ColumnText(0)] = struct{}{}
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("metastore: collecting references: %w", err)
	}
	return references, nil
}

// RecordConflict appends a discarded version to the audit trail.
func (s *Store) RecordConflict(ctx context.Context, conflict Conflict) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("metastore: record conflict: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("metastore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err := sqlitex.Execute(conn,
		`INSERT INTO conflicts (vault, path, winner_version, winner_content, loser_version, loser_content, loser_deleted, recorded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			conflict.Vault, conflict.Path,
			int64(conflict.Winner.Version), conflict.Winner.Content,
			int64(conflict.Loser.Version), conflict.Loser.Content, boolInt(conflict.Loser.Deleted),
			timeInt(conflict.Recorded),
		}},
	); err != nil {
		return fmt.Errorf("metastore: recording conflict on %s: %w", vault.Join(conflict.Vault, conflict.Path), err)
	}
	return nil
}

// Conflicts returns the most recent conflict records for vaultName,
// newest first.
func (s *Store) Conflicts(ctx context.Context, vaultName string, limit int) ([]Conflict, error) {
	var conflicts []Conflict
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT path, winner_version, winner_content, loser_version, loser_content, loser_deleted, recorded
			FROM conflicts WHERE vault = ? ORDER BY id DESC LIMIT ?`,
			&sqlitex.ExecOptions{
				Args: []any{vaultName, limit},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					path := stmt.ColumnText(0)
					conflicts = append(conflicts, Conflict{
						Vault: vaultName,
						Path:  path,
						Winner: vault.Entry{
							Vault: vaultName, Path: path,
							Version: uint64(stmt.ColumnInt64(1)), Content: stmt.ColumnText(2),
						},
						Loser: vault.Entry{
							Vault: vaultName, Path: path,
							Version: uint64(stmt.ColumnInt64(3)), Content: stmt.ColumnText(4),
							Deleted: stmt.ColumnInt64(5) != 0,
						},
						Recorded: intTime(stmt.ColumnInt64(6)),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("metastore: listing conflicts of %s: %w", vaultName, err)
	}
	return conflicts, nil
}

type vaultState struct {
	epoch    string
	sequence uint64
}

// ensureState reads the vault_state row, inserting a fresh epoch when
// absent. Must run inside a write transaction.
func ensureState(conn *sqlite.Conn, vaultName string) (vaultState, error) {
	var state vaultState
	found := false
	if err := sqlitex.Execute(conn, `SELECT epoch, sequence FROM vault_state WHERE vault = ?`,
		&sqlitex.ExecOptions{
			Args: []any{vaultName},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				state.epoch = stmt.ColumnText(0)
				state.sequence = uint64(stmt.ColumnInt64(1))
				return nil
			},
		}); err != nil {
		return vaultState{}, fmt.Errorf("metastore: reading state of %s: %w", vaultName, err)
	}
	if found {
		return state, nil
	}
	state.epoch = uuid.NewString()
	if err := sqlitex.Execute(conn, `INSERT INTO vault_state (vault, epoch, sequence) VALUES (?, ?, 0)`,
		&sqlitex.ExecOptions{Args: []any{vaultName, state.epoch}}); err != nil {
		return vaultState{}, fmt.Errorf("metastore: creating state of %s: %w", vaultName, err)
	}
	return state, nil
}

func fetchEntry(conn *sqlite.Conn, vaultName, path string, entry *vault.Entry, stale *bool) (bool, error) {
	found := false
	err := sqlitex.Execute(conn, `SELECT `+entryColumns+` FROM entries WHERE vault = ? AND path = ?`,
		&sqlitex.ExecOptions{
			Args: []any{vaultName, path},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				scanEntry(stmt, entry, stale)
				return nil
			},
		})
	return found, err
}

func writeEntry(conn *sqlite.Conn, entry *vault.Entry) error {
	err := sqlitex.Execute(conn,
		`INSERT INTO entries (vault, path, parent, kind, size, version, sequence, content, modified, deleted, stale)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT (vault, path) DO UPDATE SET
			kind = excluded.kind, size = excluded.size, version = excluded.version,
			sequence = excluded.sequence, content = excluded.content,
			modified = excluded.modified, deleted = excluded.deleted, stale = 0`,
		&sqlitex.ExecOptions{Args: []any{
			entry.Vault, entry.Path, vault.Parent(entry.Path),
			int64(entry.Kind), entry.Size, int64(entry.Version), int64(entry.Sequence),
			entry.Content, timeInt(entry.Modified), boolInt(entry.Deleted),
		}})
	if err != nil {
		return fmt.Errorf("metastore: writing %s: %w", vault.Join(entry.Vault, entry.Path), err)
	}
	return nil
}

// scanEntry reads a row selected with entryColumns.
func scanEntry(stmt *sqlite.Stmt, entry *vault.Entry, stale *bool) {
	entry.Vault = stmt.ColumnText(0)
	entry.Path = stmt.ColumnText(1)
	entry.Kind = vault.Kind(stmt.ColumnInt64(2))
	entry.Size = stmt.ColumnInt64(3)
	entry.Version = uint64(stmt.ColumnInt64(4))
	entry.Sequence = uint64(stmt.ColumnInt64(5))
	entry.Content = stmt.ColumnText(6)
	entry.Modified = intTime(stmt.ColumnInt64(7))
	entry.Deleted = stmt.ColumnInt64(8) != 0
	*stale = stmt.ColumnInt64(9) != 0
}

func boolInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}

// timeInt stores times as Unix nanoseconds; the zero time is 0.
func timeInt(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UnixNano()
}

func intTime(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(0, value).UTC()
}
