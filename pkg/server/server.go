// Package server exposes the client over HTTP. The surface is a thin
// adapter: validation, pipeline, and search semantics all live in the
// core packages.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	chronograph "github.com/chronograph-io/chronograph"
	"github.com/chronograph-io/chronograph/pkg/types"
)

// Server wraps a chronograph client with an HTTP surface.
type Server struct {
	client *chronograph.Client
	logger *slog.Logger
	engine *gin.Engine
}

// New builds the server and its routes. mode is a gin mode string.
func New(client *chronograph.Client, logger *slog.Logger, mode string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if mode != "" {
		gin.SetMode(mode)
	}
	s := &Server{client: client, logger: logger, engine: gin.New()}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.health)
	s.engine.POST("/episodes", s.addEpisode)
	s.engine.POST("/episodes/bulk", s.addEpisodeBulk)
	s.engine.GET("/search", s.search)
	s.engine.GET("/groups/:group_id/snapshot", s.snapshot)
	s.engine.GET("/groups/:group_id/communities", s.communities)
	s.engine.POST("/groups/:group_id/communities", s.buildCommunities)
	s.engine.DELETE("/groups/:group_id/episodes/:uuid", s.removeEpisode)
	s.engine.DELETE("/groups/:group_id", s.deleteGroup)
}

// Handler returns the http.Handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.engine.Run(addr)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type episodeRequest struct {
	Name      string    `json:"name"`
	Content   string    `json:"content" binding:"required"`
	Source    string    `json:"source"`
	Kind      string    `json:"kind"`
	GroupID   string    `json:"group_id" binding:"required"`
	Reference time.Time `json:"reference"`
}

func (r *episodeRequest) episode() *types.Episode {
	kind := types.EpisodeKind(r.Kind)
	if kind == "" {
		kind = types.TextEpisode
	}
	return &types.Episode{
		Name:      r.Name,
		Content:   r.Content,
		Source:    r.Source,
		Kind:      kind,
		GroupID:   r.GroupID,
		Reference: r.Reference,
	}
}

func (s *Server) addEpisode(c *gin.Context) {
	var req episodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	results, err := s.client.AddEpisode(c.Request.Context(), req.episode())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, results)
}

func (s *Server) addEpisodeBulk(c *gin.Context) {
	var reqs []episodeRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	episodes := make([]*types.Episode, len(reqs))
	for i := range reqs {
		episodes[i] = reqs[i].episode()
	}
	results, err := s.client.AddEpisodeBulk(c.Request.Context(), episodes)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}
	groups := c.QueryArray("group_id")
	if len(groups) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one group_id is required"})
		return
	}

	cfg := &types.SearchConfig{
		GroupIDs:       groups,
		CenterNodeUUID: c.Query("center"),
		UseMMR:         c.Query("mmr") == "true",
		Rerank:         c.Query("rerank") == "true",
	}
	if limit := c.Query("limit"); limit != "" {
		if _, err := fmt.Sscanf(limit, "%d", &cfg.Limit); err != nil || cfg.Limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
	}

	results, err := s.client.Search(c.Request.Context(), query, cfg)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) snapshot(c *gin.Context) {
	at := time.Now().UTC()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at must be RFC3339"})
			return
		}
		at = parsed
	}
	nodes, edges, err := s.client.Snapshot(c.Request.Context(), c.Param("group_id"), at)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"at": at, "nodes": nodes, "edges": edges})
}

func (s *Server) communities(c *gin.Context) {
	communities, err := s.client.GetCommunities(c.Request.Context(), c.Param("group_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"communities": communities})
}

func (s *Server) buildCommunities(c *gin.Context) {
	communities, err := s.client.BuildCommunities(c.Request.Context(), c.Param("group_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"communities": communities})
}

func (s *Server) removeEpisode(c *gin.Context) {
	err := s.client.RemoveEpisode(c.Request.Context(), c.Param("group_id"), c.Param("uuid"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteGroup(c *gin.Context) {
	if err := s.client.DeleteGroup(c.Request.Context(), c.Param("group_id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// fail maps pipeline error kinds onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var perr *chronograph.PipelineError
	switch {
	case errors.As(err, &perr):
		switch perr.Kind {
		case chronograph.KindInvalidNamespace, chronograph.KindInvalidEpisode:
			status = http.StatusBadRequest
		case chronograph.KindCapabilityUnavailable, chronograph.KindStoreUnavailable:
			status = http.StatusServiceUnavailable
		}
	case errors.Is(err, chronograph.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	s.logger.Error("request failed", "path", c.FullPath(), "status", status, "error", err)
	c.JSON(status, gin.H{"error": err.Error()})
}
