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
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/consul"
	"github.com/knadh/koanf/providers/etcd"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// SourceType names a backing store the Loader can read from.
type SourceType string

const (
	SourceFile      SourceType = "file"
	SourceConsul    SourceType = "consul"
	SourceEtcd      SourceType = "etcd"
	SourceZookeeper SourceType = "zookeeper"
)

// LoaderOptions configures one Loader.
type LoaderOptions struct {
	Type      SourceType
	Path      string
	Endpoints []string
	Watch     bool
	OnChange  func(*Config) error
}

// Loader reads a Config from a file or a distributed KV store,
// expanding ${VAR} references, and optionally reloads it on change.
type Loader struct {
	koanf    *koanf.Koanf
	options  LoaderOptions
	parser   *yaml.YAML
	stopChan chan struct{}
}

// NewLoader validates opts and builds a Loader ready to Load.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Type == "" {
		opts.Type = SourceFile
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	if len(opts.Endpoints) == 0 {
		switch opts.Type {
		case SourceConsul:
			opts.Endpoints = []string{"localhost:8500"}
		case SourceEtcd:
			opts.Endpoints = []string{"localhost:2379"}
		case SourceZookeeper:
			opts.Endpoints = []string{"localhost:2181"}
		}
	}

	return &Loader{
		koanf:    koanf.New("."),
		options:  opts,
		parser:   yaml.Parser(),
		stopChan: make(chan struct{}),
	}, nil
}

// Load reads the config once, applies defaults, and starts the
// background watcher when opts.Watch is set.
func (l *Loader) Load() (*Config, error) {
	provider, err := l.buildProvider()
	if err != nil {
		return nil, err
	}

	if err := l.koanf.Load(provider, l.parserFor()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", l.options.Type, err)
	}
	if err := l.expandEnvVars(); err != nil {
		return nil, fmt.Errorf("expand environment variables: %w", err)
	}

	cfg, err := l.unmarshal()
	if err != nil {
		return nil, err
	}

	if l.options.Watch {
		go l.watch(provider)
	}

	return cfg, nil
}

func (l *Loader) buildProvider() (koanf.Provider, error) {
	switch l.options.Type {
	case SourceFile:
		return file.Provider(l.options.Path), nil

	case SourceConsul:
		consulCfg := api.DefaultConfig()
		consulCfg.Address = l.options.Endpoints[0]
		return consul.Provider(consul.Config{Cfg: consulCfg, Key: l.options.Path}), nil

	case SourceEtcd:
		return etcd.Provider(etcd.Config{
			Endpoints:   l.options.Endpoints,
			DialTimeout: 5 * time.Second,
			Key:         l.options.Path,
		}), nil

	case SourceZookeeper:
		return newZookeeperProvider(l.options.Endpoints, l.options.Path)

	default:
		return nil, fmt.Errorf("unsupported config source: %s", l.options.Type)
	}
}

func (l *Loader) parserFor() koanf.Parser {
	if l.options.Type == SourceFile || l.options.Type == SourceZookeeper {
		return l.parser
	}
	return nil
}

// watcher is satisfied by koanf providers (and zookeeperProvider)
// that support push notification of changes.
type watcher interface {
	Watch(cb func(event interface{}, err error)) error
}

func (l *Loader) watch(provider koanf.Provider) {
	w, ok := provider.(watcher)
	if !ok {
		slog.Warn("config provider does not support watching", "type", l.options.Type)
		return
	}

	slog.Info("config watcher started", "type", l.options.Type)

	err := w.Watch(func(event interface{}, err error) {
		select {
		case <-l.stopChan:
			return
		default:
		}
		if err != nil {
			slog.Warn("config watch error", "error", err)
			return
		}

		if loadErr := l.koanf.Load(provider, l.parserFor()); loadErr != nil {
			slog.Warn("failed to reload config", "error", loadErr)
			return
		}
		if expandErr := l.expandEnvVars(); expandErr != nil {
			slog.Warn("failed to expand env vars in reloaded config", "error", expandErr)
			return
		}

		cfg, unmarshalErr := l.unmarshal()
		if unmarshalErr != nil {
			slog.Warn("reloaded config failed validation", "error", unmarshalErr)
			return
		}

		if l.options.OnChange != nil {
			if cbErr := l.options.OnChange(cfg); cbErr != nil {
				slog.Warn("config change callback failed", "error", cbErr)
			} else {
				slog.Info("configuration reloaded", "type", l.options.Type)
			}
		}
	})
	if err != nil {
		slog.Warn("config watch stopped", "error", err)
	}
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := &Config{}
	if err := l.koanf.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.SetDefaults()
	return cfg, nil
}

func (l *Loader) expandEnvVars() error {
	expanded, ok := expandEnvVarsInData(l.koanf.Raw()).(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected type after environment expansion")
	}

	newKoanf := koanf.New(".")
	if err := newKoanf.Load(confmap.Provider(expanded, "."), nil); err != nil {
		return fmt.Errorf("reload expanded config: %w", err)
	}
	l.koanf = newKoanf
	return nil
}

// Stop ends the background watcher started by Load.
func (l *Loader) Stop() { close(l.stopChan) }

// SetOnChange registers or replaces the hot-reload callback.
func (l *Loader) SetOnChange(cb func(*Config) error) { l.options.OnChange = cb }

// Load is a convenience wrapper that discards the Loader.
func Load(opts LoaderOptions) (*Config, error) {
	loader, err := NewLoader(opts)
	if err != nil {
		return nil, fmt.Errorf("create loader: %w", err)
	}
	return loader.Load()
}

// ParseSourceType parses a CLI/env string into a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file":
		return SourceFile, nil
	case "consul":
		return SourceConsul, nil
	case "etcd":
		return SourceEtcd, nil
	case "zookeeper", "zk":
		return SourceZookeeper, nil
	default:
		return "", fmt.Errorf("invalid config source: %s (valid: file, consul, etcd, zookeeper)", s)
	}
}
