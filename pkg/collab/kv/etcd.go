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
	"encoding/json"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/loopforge/autocore/pkg/corerr"
)

// EtcdStore is a KVStore backed by etcd, for multi-orchestrator
// deployments that share session/decision/checkpoint state across
// processes (spec.md §6 persisted state layout).
type EtcdStore struct {
	client  *clientv3.Client
	timeout time.Duration
}

// EtcdConfig configures an EtcdStore.
type EtcdConfig struct {
	Endpoints   []string
	DialTimeout time.Duration
	OpTimeout   time.Duration
}

// NewEtcdStore dials an etcd cluster.
func NewEtcdStore(cfg EtcdConfig) (*EtcdStore, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.OpTimeout == 0 {
		cfg.OpTimeout = 3 * time.Second
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, &corerr.PersistenceFailureError{Op: "dial etcd", Cause: err}
	}
	return &EtcdStore{client: client, timeout: cfg.OpTimeout}, nil
}

// Close releases the etcd client.
func (s *EtcdStore) Close() error {
	return s.client.Close()
}

func (s *EtcdStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Read decodes the JSON value at key into out. A missing key leaves
// out untouched.
func (s *EtcdStore) Read(ctx context.Context, key []string, out any) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.Get(ctx, joinKey(key))
	if err != nil {
		return &corerr.PersistenceFailureError{Op: "read " + joinKey(key), Cause: err}
	}
	if len(resp.Kvs) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Kvs[0].Value, out); err != nil {
		return &corerr.PersistenceFailureError{Op: "decode " + joinKey(key), Cause: err}
	}
	return nil
}

// Write puts value as JSON at key.
func (s *EtcdStore) Write(ctx context.Context, key []string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &corerr.PersistenceFailureError{Op: "encode " + joinKey(key), Cause: err}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.client.Put(ctx, joinKey(key), string(raw)); err != nil {
		return &corerr.PersistenceFailureError{Op: "write " + joinKey(key), Cause: err}
	}
	return nil
}

// Remove deletes the value at key.
func (s *EtcdStore) Remove(ctx context.Context, key []string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.client.Delete(ctx, joinKey(key)); err != nil {
		return &corerr.PersistenceFailureError{Op: "remove " + joinKey(key), Cause: err}
	}
	return nil
}

// List returns every key under prefix.
func (s *EtcdStore) List(ctx context.Context, prefix []string) ([][]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.Get(ctx, joinKey(prefix), clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, &corerr.PersistenceFailureError{Op: "list " + joinKey(prefix), Cause: err}
	}

	out := make([][]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out = append(out, strings.Split(string(kv.Key), "/"))
	}
	return out, nil
}

// String implements fmt.Stringer for log lines.
func (s *EtcdStore) String() string { return "kv.EtcdStore" }
