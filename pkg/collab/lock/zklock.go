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

// Package lock provides distributed mutual exclusion for a VCS
// working tree, used when multiple orchestrator processes could
// otherwise race to mutate the same checkout (spec.md §5 "shared
// resource policy (iii)"). ZooKeeper backs it across processes/hosts;
// the package has no in-process implementation.
package lock

import (
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"
)

// WorkingTreeLock guards exclusive access to one VCS working
// directory across orchestrator processes sharing a ZooKeeper
// ensemble.
type WorkingTreeLock struct {
	conn *zk.Conn
	lock *zk.Lock
	path string
}

// NewWorkingTreeLock connects to the given ZooKeeper servers and
// prepares (but does not yet acquire) a lock for workingDir.
func NewWorkingTreeLock(servers []string, workingDir string) (*WorkingTreeLock, error) {
	conn, _, err := zk.Connect(servers, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect zookeeper: %w", err)
	}

	path := "/autocore/worktree-locks" + sanitize(workingDir)
	acl := zk.WorldACL(zk.PermAll)
	l := zk.NewLock(conn, path, acl)

	return &WorkingTreeLock{conn: conn, lock: l, path: path}, nil
}

// Acquire blocks until the lock is held or the connection fails.
// Callers should treat a returned error as "mutation unsupported
// right now" per spec.md's unsupported-behavior note, not retry
// indefinitely.
func (w *WorkingTreeLock) Acquire() error {
	if err := w.lock.Lock(); err != nil {
		return fmt.Errorf("acquire working tree lock %s: %w", w.path, err)
	}
	return nil
}

// Release gives up the lock.
func (w *WorkingTreeLock) Release() error {
	return w.lock.Unlock()
}

// Close closes the underlying ZooKeeper session.
func (w *WorkingTreeLock) Close() {
	w.conn.Close()
}

func sanitize(workingDir string) string {
	out := make([]byte, 0, len(workingDir))
	for i := 0; i < len(workingDir); i++ {
		c := workingDir[i]
		if c == '/' || c == '\\' {
			out = append(out, '_')
			continue
		}
		out = append(out, c)
	}
	return "/" + string(out)
}
