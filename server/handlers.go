package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/utkarsh5026/heatload/config"
	"github.com/utkarsh5026/heatload/session"
)

type startRequest struct {
	Preset string `json:"preset"`
	config.Config
}

type intensityRequest struct {
	Intensity *float64 `json:"intensity" binding:"required"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Health())
}

func (s *Server) handleReady(c *gin.Context) {
	ready := s.engine.Ready()
	status := http.StatusOK
	if ready.Degraded() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, ready)
}

func (s *Server) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleLogs(c *gin.Context) {
	if s.logs == nil {
		c.JSON(http.StatusOK, gin.H{"entries": []any{}})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	c.JSON(http.StatusOK, gin.H{"entries": s.logs.Recent(limit)})
}

func (s *Server) handlePresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"presets": s.presets.List()})
}

func (s *Server) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := req.Config
	if req.Preset != "" {
		p, err := s.presets.Lookup(req.Preset)
		if err != nil {
			s.fail(c, err)
			return
		}
		cfg = p.Config
	}

	if err := s.engine.Start(cfg); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handlePause(c *gin.Context) {
	s.transition(c, s.engine.Pause)
}

func (s *Server) handleResume(c *gin.Context) {
	s.transition(c, s.engine.Resume)
}

func (s *Server) handleStop(c *gin.Context) {
	s.transition(c, s.engine.Stop)
}

func (s *Server) handleIntensity(c *gin.Context) {
	var req intensityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.transition(c, func() error { return s.engine.UpdateIntensity(*req.Intensity) })
}

func (s *Server) transition(c *gin.Context, fn func() error) {
	if err := fn(); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

// fail maps engine errors to status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, config.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, config.ErrUnknownPreset):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, session.ErrUnsupported), errors.Is(err, session.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("session control failed", "path", c.Request.URL.Path, "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
