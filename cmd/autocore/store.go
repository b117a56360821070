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

package main

import (
	"fmt"
	"io"

	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/collab/kv"
	"github.com/loopforge/autocore/pkg/config"
)

// closableKV is the persistence handle every cmd/autocore subcommand
// opens at startup: a collab.KVStore that also owns a connection or
// file handle to release on exit.
type closableKV interface {
	collab.KVStore
	io.Closer
}

// openStore opens the KVStore backend named by cfg.Storage.Driver.
func openStore(cfg *config.Config) (closableKV, error) {
	switch cfg.Storage.Driver {
	case "", "sqlite":
		path := cfg.Storage.Path
		if path == "" {
			path = "autocore.db"
		}
		return kv.OpenSQLiteStore(path)

	case "mysql":
		return kv.OpenMySQLStore(cfg.Storage.DSN)

	case "postgres":
		return kv.OpenPostgresStore(cfg.Storage.DSN)

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
}
