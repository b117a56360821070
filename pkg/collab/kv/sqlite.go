// Copyright 2025 The autocore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kv provides collab.KVStore implementations: a local
// sqlite-backed store for single-node runs and an etcd-backed store
// for distributed deployments, both keyed on the hierarchical path
// layout of spec.md §6 (e.g. "autonomous/decisions/{projectId}/{id}").
package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/loopforge/autocore/pkg/corerr"
)

// SQLiteStore is a KVStore backed by a single sqlite file. It is the
// default persistence for session context, decisions, checkpoints,
// metrics, and reports (spec.md §6) when no distributed coordinator
// is configured.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) a sqlite database at
// path and ensures the kv table exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &corerr.PersistenceFailureError{Op: "open sqlite store", Cause: err}
	}
	const schema = `CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &corerr.PersistenceFailureError{Op: "create kv schema", Cause: err}
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func joinKey(key []string) string {
	return strings.Join(key, "/")
}

// Read decodes the JSON value stored at key into out. A missing key
// leaves out untouched and returns nil, matching the "logged, not
// fatal" persistence-failure policy only for I/O errors, not
// not-found: callers that need existence must check separately.
func (s *SQLiteStore) Read(ctx context.Context, key []string, out any) error {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, joinKey(key))
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return &corerr.PersistenceFailureError{Op: "read " + joinKey(key), Cause: err}
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &corerr.PersistenceFailureError{Op: "decode " + joinKey(key), Cause: err}
	}
	return nil
}

// Write upserts value as JSON at key.
func (s *SQLiteStore) Write(ctx context.Context, key []string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &corerr.PersistenceFailureError{Op: "encode " + joinKey(key), Cause: err}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		joinKey(key), string(raw))
	if err != nil {
		return &corerr.PersistenceFailureError{Op: "write " + joinKey(key), Cause: err}
	}
	return nil
}

// Remove deletes the value at key, if any.
func (s *SQLiteStore) Remove(ctx context.Context, key []string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, joinKey(key))
	if err != nil {
		return &corerr.PersistenceFailureError{Op: "remove " + joinKey(key), Cause: err}
	}
	return nil
}

// List returns every key under prefix, split back into path segments.
func (s *SQLiteStore) List(ctx context.Context, prefix []string) ([][]string, error) {
	p := joinKey(prefix)
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv WHERE key LIKE ?`, p+"%")
	if err != nil {
		return nil, &corerr.PersistenceFailureError{Op: "list " + p, Cause: err}
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, &corerr.PersistenceFailureError{Op: "list " + p, Cause: err}
		}
		out = append(out, strings.Split(key, "/"))
	}
	return out, rows.Err()
}

// String implements fmt.Stringer for log lines.
func (s *SQLiteStore) String() string { return "kv.SQLiteStore" }
