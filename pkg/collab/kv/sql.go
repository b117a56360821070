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

package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/loopforge/autocore/pkg/corerr"
)

// dialect isolates the two places MySQL and Postgres diverge from the
// sqlite3 driver's syntax: positional placeholders and the upsert
// clause.
type dialect struct {
	name      string
	schema    string
	placehold func(n int) string
	upsert    string
}

var dialects = map[string]dialect{
	"mysql": {
		name: "mysql",
		schema: `CREATE TABLE IF NOT EXISTS kv (
			` + "`key`" + ` VARCHAR(767) PRIMARY KEY,
			value LONGTEXT NOT NULL
		)`,
		placehold: func(int) string { return "?" },
		upsert:    "INSERT INTO kv (`key`, value) VALUES (?, ?) ON DUPLICATE KEY UPDATE value = VALUES(value)",
	},
	"postgres": {
		name: "postgres",
		schema: `CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		placehold: func(n int) string { return fmt.Sprintf("$%d", n) },
		upsert:    "INSERT INTO kv (key, value) VALUES ($1, $2) ON CONFLICT(key) DO UPDATE SET value = EXCLUDED.value",
	},
}

// SQLStore is a collab.KVStore backed by a production SQL database
// (MySQL or Postgres), for deployments where a single sqlite file
// per node (SQLiteStore) isn't shared across replicas of the
// orchestrator.
type SQLStore struct {
	db  *sql.DB
	dlt dialect
}

// OpenMySQLStore opens a MySQL-backed KVStore using dsn in
// go-sql-driver/mysql's DSN format ("user:pass@tcp(host:port)/db").
func OpenMySQLStore(dsn string) (*SQLStore, error) {
	return openSQLStore("mysql", dsn)
}

// OpenPostgresStore opens a Postgres-backed KVStore using dsn in
// lib/pq's connection-string or URL format.
func OpenPostgresStore(dsn string) (*SQLStore, error) {
	return openSQLStore("postgres", dsn)
}

func openSQLStore(driver, dsn string) (*SQLStore, error) {
	dlt, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("kv: unsupported sql dialect %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &corerr.PersistenceFailureError{Op: "open " + driver + " store", Cause: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &corerr.PersistenceFailureError{Op: "connect to " + driver, Cause: err}
	}
	if _, err := db.Exec(dlt.schema); err != nil {
		db.Close()
		return nil, &corerr.PersistenceFailureError{Op: "create kv schema", Cause: err}
	}
	return &SQLStore{db: db, dlt: dlt}, nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) ph(n int) string { return s.dlt.placehold(n) }

// Read decodes the JSON value stored at key into out. A missing key
// leaves out untouched and returns nil.
func (s *SQLStore) Read(ctx context.Context, key []string, out any) error {
	q := fmt.Sprintf(`SELECT value FROM kv WHERE key = %s`, s.ph(1))
	row := s.db.QueryRowContext(ctx, q, joinKey(key))
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
func (s *SQLStore) Write(ctx context.Context, key []string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &corerr.PersistenceFailureError{Op: "encode " + joinKey(key), Cause: err}
	}
	if _, err := s.db.ExecContext(ctx, s.dlt.upsert, joinKey(key), string(raw)); err != nil {
		return &corerr.PersistenceFailureError{Op: "write " + joinKey(key), Cause: err}
	}
	return nil
}

// Remove deletes the value at key, if any.
func (s *SQLStore) Remove(ctx context.Context, key []string) error {
	q := fmt.Sprintf(`DELETE FROM kv WHERE key = %s`, s.ph(1))
	if _, err := s.db.ExecContext(ctx, q, joinKey(key)); err != nil {
		return &corerr.PersistenceFailureError{Op: "remove " + joinKey(key), Cause: err}
	}
	return nil
}

// List returns every key under prefix, split back into path segments.
func (s *SQLStore) List(ctx context.Context, prefix []string) ([][]string, error) {
	p := joinKey(prefix)
	q := fmt.Sprintf(`SELECT key FROM kv WHERE key LIKE %s`, s.ph(1))
	rows, err := s.db.QueryContext(ctx, q, p+"%")
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
func (s *SQLStore) String() string { return "kv." + s.dlt.name + "Store" }
