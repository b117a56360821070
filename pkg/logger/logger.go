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

// Package logger wires log/slog for the autocore control loop: one
// process-wide logger built once at startup, filtered so third-party
// library noise only shows up at DEBUG, and carried on context.Context
// so every component can log with session/task scoping without
// threading a logger through every constructor.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

const autocorePackagePrefix = "github.com/loopforge/autocore"

type ctxKey struct{}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error. Unrecognized values fall back
// to warn rather than failing a session over a config typo.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// filteringHandler filters third-party library logs out unless the
// level is DEBUG, so a session transcript isn't drowned in a vendored
// driver's internal chatter.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel && h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || h.isOwnPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	file, _ := fn.FileLine(pc)
	return strings.Contains(fn.Name(), autocorePackagePrefix) || strings.Contains(file, "autocore/")
}

// Config controls how the root logger is built.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|text
	Output io.Writer
}

// New builds a root *slog.Logger from Config. JSON output is the
// default so deployed sessions emit machine-parseable lines; "text" is
// meant for local development.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && a.Value.String() == "WARNING" {
				return slog.String(slog.LevelKey, "WARN")
			}
			return a
		},
	}

	var base slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		base = slog.NewTextHandler(out, opts)
	} else {
		base = slog.NewJSONHandler(out, opts)
	}
	return slog.New(&filteringHandler{handler: base, minLevel: level})
}

// WithContext attaches a logger to ctx.
func WithContext(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext returns the logger attached to ctx, or a discard logger
// if none was attached, so callers never need a nil check.
func FromContext(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && log != nil {
		return log
	}
	return discard
}

// Session returns a logger pre-scoped with a session_id field and
// installs it on ctx in one step.
func Session(ctx context.Context, sessionID string) (context.Context, *slog.Logger) {
	log := FromContext(ctx).With("session_id", sessionID)
	return WithContext(ctx, log), log
}
