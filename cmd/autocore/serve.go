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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/loopforge/autocore/pkg/checkpoint"
	"github.com/loopforge/autocore/pkg/httpauth"
	"github.com/loopforge/autocore/pkg/metrics"
)

// ServeCmd runs the metrics and health HTTP server on its own,
// without driving a session. Useful for scraping a long-running
// orchestrator's state from a sidecar, or as a standalone health
// check against the checkpoint store.
type ServeCmd struct {
	Addr string `help:"Address to listen on." default:":8080"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := loadAndLog(cli)
	if err != nil {
		return err
	}

	addr := c.Addr
	if addr == ":8080" && cfg.Server.Addr != "" {
		addr = cfg.Server.Addr
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()

	collector := metrics.New(cfg.Metrics)
	storage := checkpoint.NewStorage(store)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	router.Handle("/metrics", collector.Handler())
	router.Get("/healthz", handleHealthz)

	sessionsHandler := handleSessions(storage)
	if cfg.Auth.Enabled {
		validator, err := httpauth.NewValidator(context.Background(), cfg.Auth.JWKSURL, cfg.Auth.Issuer, cfg.Auth.Audience)
		if err != nil {
			return fmt.Errorf("configure auth: %w", err)
		}
		router.With(validator.Middleware).Get("/sessions", sessionsHandler)
	} else {
		router.Get("/sessions", sessionsHandler)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving metrics and health endpoints", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleSessions(storage *checkpoint.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := storage.ListRecoverableSessions(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"recoverable_sessions": ids})
	}
}
