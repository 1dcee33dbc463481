/*
 * Copyright 2025 the whatstrax authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api provides the HTTP control surface and the live sample stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sifary/whatstrax/pkg/logger"
	"github.com/sifary/whatstrax/pkg/models"
	"github.com/sifary/whatstrax/pkg/tracker"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
	defaultHistory    = 100
)

// TargetRegistry is the subset of the tracker the API needs.
type TargetRegistry interface {
	AddTarget(ctx context.Context, target, platform string) error
	RemoveTarget(ctx context.Context, target string) error
	Targets() []tracker.TargetStatus
}

// HistoryReader serves retained samples for a target.
type HistoryReader interface {
	Points(ctx context.Context, target string, limit int) ([]models.PresenceSample, error)
}

// Server exposes target management, history, and the live stream.
type Server struct {
	registry TargetRegistry
	history  HistoryReader
	hub      *Hub
	srv      *http.Server
	logger   logger.Logger
}

// NewServer creates the API server. history may be nil when no sink is
// configured; the history endpoint then returns empty results.
func NewServer(listenAddr string, registry TargetRegistry, history HistoryReader, log logger.Logger) *Server {
	s := &Server{
		registry: registry,
		history:  history,
		hub:      NewHub(log),
		logger:   log,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/targets", s.handleListTargets).Methods(http.MethodGet)
	router.HandleFunc("/api/targets", s.handleAddTarget).Methods(http.MethodPost)
	router.HandleFunc("/api/targets/{target}", s.handleRemoveTarget).Methods(http.MethodDelete)
	router.HandleFunc("/api/targets/{target}/history", s.handleHistory).Methods(http.MethodGet)
	router.HandleFunc("/api/stream", s.hub.handleStream)

	s.srv = &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

// Hub returns the live stream hub, which implements tracker.SampleConsumer.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start implements the lifecycle.Service interface.
func (s *Server) Start(_ context.Context) error {
	s.logger.Info().Str("addr", s.srv.Addr).Msg("Starting API server")

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server failed")
		}
	}()

	return nil
}

// Stop implements the lifecycle.Service interface.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	s.hub.Close()

	return s.srv.Shutdown(shutdownCtx)
}

type addTargetRequest struct {
	Target   string `json:"target"`
	Platform string `json:"platform"`
}

func (s *Server) handleAddTarget(w http.ResponseWriter, r *http.Request) {
	var req addTargetRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Target == "" || req.Platform == "" {
		writeError(w, "target and platform are required", http.StatusBadRequest)
		return
	}

	err := s.registry.AddTarget(r.Context(), req.Target, req.Platform)

	switch {
	case errors.Is(err, tracker.ErrDuplicateTarget):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, tracker.ErrUnknownPlatform):
		writeError(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		writeError(w, err.Error(), http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusCreated)
	}
}

func (s *Server) handleRemoveTarget(w http.ResponseWriter, r *http.Request) {
	target := mux.Vars(r)["target"]

	err := s.registry.RemoveTarget(r.Context(), target)

	switch {
	case errors.Is(err, tracker.ErrTargetNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case err != nil:
		writeError(w, err.Error(), http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleListTargets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.registry.Targets())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	target := mux.Vars(r)["target"]

	limit := defaultHistory
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}

		limit = n
	}

	if s.history == nil {
		writeJSON(w, []models.PresenceSample{})
		return
	}

	points, err := s.history.Points(r.Context(), target, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("target", target).Msg("Failed to read history")
		writeError(w, "failed to read history", http.StatusInternalServerError)

		return
	}

	if points == nil {
		points = []models.PresenceSample{}
	}

	writeJSON(w, points)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
