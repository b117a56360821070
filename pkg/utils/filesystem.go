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

// Package utils provides small utility functions shared across the
// control loop: data-directory layout and LLM token counting.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDataDir ensures the .autocore directory exists at the given base
// path. If basePath is empty or ".", it creates ./.autocore in the
// current directory; otherwise {basePath}/.autocore.
//
// No store in this module calls it: session checkpoints persist
// through the collab.KVStore behind pkg/checkpoint.Storage, not
// through files under this directory.
func EnsureDataDir(basePath string) (string, error) {
	var dataDir string
	if basePath == "" || basePath == "." {
		dataDir = ".autocore"
	} else {
		dataDir = filepath.Join(basePath, ".autocore")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory at %q: %w", dataDir, err)
	}

	return dataDir, nil
}

// WriteFileAtomic writes data to path by writing to a temp file in the
// same directory and renaming over the target, so a reader never
// observes a partially written file (spec.md §5: session checkpoint
// files are "written atomically (tmp-then-rename)").
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
