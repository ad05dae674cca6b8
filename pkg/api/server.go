// Copyright 2025 UMH Systems GmbH
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

// Package api serves a read-only HTTP view of the state machine snapshots.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/fsmkit/pkg/constants"
	"github.com/united-manufacturing-hub/fsmkit/pkg/fsm"
	"github.com/united-manufacturing-hub/fsmkit/pkg/logger"
	"github.com/united-manufacturing-hub/fsmkit/pkg/sentry"
)

// SnapshotSource hands out copies of the latest registry snapshot.
type SnapshotSource interface {
	GetDeepCopySnapshot() fsm.RegistrySnapshot
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string    `json:"status"`
	Phase        string    `json:"phase"`
	RunID        string    `json:"runId,omitempty"`
	Tick         uint64    `json:"tick"`
	Machines     int       `json:"machines"`
	SnapshotTime time.Time `json:"snapshotTime"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	statusOK          = "ok"
	statusUnavailable = "unavailable"
)

// Server exposes the snapshot endpoints.
type Server struct {
	router    *gin.Engine
	snapshots SnapshotSource
	logger    *zap.SugaredLogger
}

// NewServer creates a server reading from snapshots.
func NewServer(snapshots SnapshotSource) *Server {
	gin.SetMode(gin.ReleaseMode)

	log := logger.For(logger.ComponentAPI)

	s := &Server{
		router:    gin.New(),
		snapshots: snapshots,
		logger:    log,
	}

	s.router.Use(gin.Recovery())
	s.router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugf("%s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	})

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/fsm", s.handleList)
	s.router.GET("/fsm/:owner/:name", s.handleGet)

	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr until ctx is cancelled, then shuts down within
// constants.DefaultShutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Infof("Starting API server on %s", addr)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			sentry.ReportIssuef(sentry.IssueTypeError, s.logger, "API server failed: %v", err)
		}

		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	s.logger.Info("API server stopped")

	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	snapshot := s.snapshots.GetDeepCopySnapshot()

	resp := HealthResponse{
		Status:       statusOK,
		Phase:        snapshot.Phase,
		RunID:        snapshot.RunID,
		Tick:         snapshot.Tick,
		Machines:     len(snapshot.Machines),
		SnapshotTime: snapshot.SnapshotTime,
	}

	status := http.StatusOK
	if snapshot.RunID == "" {
		resp.Status = statusUnavailable
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(c, status, resp)
}

func (s *Server) handleList(c *gin.Context) {
	snapshot := s.snapshots.GetDeepCopySnapshot()
	if snapshot.Machines == nil {
		snapshot.Machines = []fsm.MachineSnapshot{}
	}

	s.writeJSON(c, http.StatusOK, snapshot)
}

func (s *Server) handleGet(c *gin.Context) {
	owner := c.Param("owner")
	name := c.Param("name")

	snapshot := s.snapshots.GetDeepCopySnapshot()

	machine, ok := snapshot.Machine(owner, name)
	if !ok {
		s.writeJSON(c, http.StatusNotFound, ErrorResponse{Error: "no machine " + owner + "." + name})

		return
	}

	s.writeJSON(c, http.StatusOK, machine)
}

func (s *Server) writeJSON(c *gin.Context, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Errorf("Failed to encode response for %s: %v", c.Request.URL.Path, err)
		c.Status(http.StatusInternalServerError)

		return
	}

	c.Data(status, "application/json; charset=utf-8", data)
}
