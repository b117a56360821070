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
	"testing"

	"github.com/stretchr/testify/assert"
)

// These exercise dialect selection without a live database: opening a
// real MySQL/Postgres connection is out of scope for a unit test with
// no broker dependency in this pack (no sqlmock/testcontainers import
// appears anywhere in it).
func TestSQLStore_DialectPlaceholders(t *testing.T) {
	mysql := &SQLStore{dlt: dialects["mysql"]}
	assert.Equal(t, "?", mysql.ph(1))
	assert.Equal(t, "?", mysql.ph(2))

	postgres := &SQLStore{dlt: dialects["postgres"]}
	assert.Equal(t, "$1", postgres.ph(1))
	assert.Equal(t, "$2", postgres.ph(2))
}

func TestSQLStore_String(t *testing.T) {
	s := &SQLStore{dlt: dialects["postgres"]}
	assert.Equal(t, "kv.postgresStore", s.String())
}

func TestOpenSQLStore_RejectsUnknownDialect(t *testing.T) {
	_, err := openSQLStore("oracle", "dsn")
	assert.Error(t, err)
}
