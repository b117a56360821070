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

package config

import (
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"
)

// zookeeperProvider is a koanf.Provider reading one znode's contents
// as a YAML document, with a Watch method the Loader's reload path
// recognizes.
type zookeeperProvider struct {
	conn      *zk.Conn
	path      string
	endpoints []string
}

func newZookeeperProvider(endpoints []string, path string) (*zookeeperProvider, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("zookeeper endpoints are required")
	}
	if path == "" {
		return nil, fmt.Errorf("zookeeper path is required")
	}

	conn, _, err := zk.Connect(endpoints, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to zookeeper: %w", err)
	}

	return &zookeeperProvider{conn: conn, path: path, endpoints: endpoints}, nil
}

// ReadBytes satisfies koanf.Provider for byte-oriented parsers.
func (p *zookeeperProvider) ReadBytes() ([]byte, error) {
	data, _, err := p.conn.Get(p.path)
	if err != nil {
		return nil, fmt.Errorf("read zookeeper path %s: %w", p.path, err)
	}
	return data, nil
}

// Read is unsupported; this provider only reads via ReadBytes.
func (p *zookeeperProvider) Read() (map[string]interface{}, error) {
	return nil, fmt.Errorf("zookeeper provider does not support direct map reads")
}

// Watch blocks, invoking callback on every znode data change, until
// the node is deleted or the watch is lost.
func (p *zookeeperProvider) Watch(callback func(event interface{}, err error)) error {
	for {
		data, _, eventCh, err := p.conn.GetW(p.path)
		if err != nil {
			callback(nil, fmt.Errorf("watch zookeeper path %s: %w", p.path, err))
			continue
		}

		event := <-eventCh
		switch event.Type {
		case zk.EventNodeDataChanged:
			callback(data, nil)
		case zk.EventNodeDeleted:
			callback(nil, fmt.Errorf("zookeeper node %s was deleted", p.path))
			return nil
		case zk.EventNotWatching:
			callback(nil, fmt.Errorf("zookeeper watch lost for path %s", p.path))
			return nil
		}
	}
}

func (p *zookeeperProvider) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
