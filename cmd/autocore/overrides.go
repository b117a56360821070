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
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/loopforge/autocore/pkg/config"
)

// applyOverrides decodes "--set session.unattended=true" style CLI
// flags onto cfg, one dotted path per entry. It reuses the "koanf"
// struct tags pkg/config already decodes with, via mapstructure's Tag
// option, so CLI overrides use the same field names as the YAML file.
func applyOverrides(cfg *config.Config, sets []string) error {
	if len(sets) == 0 {
		return nil
	}

	tree := map[string]any{}
	for _, set := range sets {
		key, value, ok := strings.Cut(set, "=")
		if !ok {
			return fmt.Errorf("invalid --set %q, expected key=value", set)
		}
		insertDotted(tree, strings.Split(key, "."), value)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "koanf",
		WeaklyTypedInput: true,
		Result:           cfg,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("build override decoder: %w", err)
	}
	if err := decoder.Decode(tree); err != nil {
		return fmt.Errorf("apply --set overrides: %w", err)
	}
	return nil
}

func insertDotted(tree map[string]any, path []string, value string) {
	if len(path) == 1 {
		tree[path[0]] = value
		return
	}
	next, ok := tree[path[0]].(map[string]any)
	if !ok {
		next = map[string]any{}
		tree[path[0]] = next
	}
	insertDotted(next, path[1:], value)
}
