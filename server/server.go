// Package server exposes clustering sessions over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"web/mapcluster/cluster"
	"web/mapcluster/dataset"
	"web/mapcluster/internal/logging"
	"web/mapcluster/manager"
	"web/mapcluster/quadtree"
	"web/mapcluster/runner"
)

// MaxGenerate bounds the item count of a single generate request.
const MaxGenerate = 5_000_000

// DefaultBounds is where generated items go when a request names no bounds:
// the continental United States.
var DefaultBounds = quadtree.Rect{North: 49, West: -125, South: 25, East: -67}

type Server struct {
	registry *runner.Registry
	dataDir  string
}

func New(registry *runner.Registry, dataDir string) *Server {
	return &Server{registry: registry, dataDir: dataDir}
}

type generateRequest struct {
	Generate int            `json:"generate"`
	Bounds   *quadtree.Rect `json:"bounds"`
	Seed     *int64         `json:"seed"`
}

type viewportRequest struct {
	North *float64 `json:"north" binding:"required"`
	West  *float64 `json:"west" binding:"required"`
	South *float64 `json:"south" binding:"required"`
	East  *float64 `json:"east" binding:"required"`
	Zoom  *float64 `json:"zoom" binding:"required"`
}

type datasetInfo struct {
	dataset.Info
	Size string `json:"size"`
}

// Router returns the gin engine serving the API.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	// Enable CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	api := r.Group("/api")
	api.GET("/datasets", s.listDatasets)
	api.POST("/sessions", s.createSession)
	api.GET("/sessions", s.listSessions)

	session := api.Group("/sessions/:id")
	session.DELETE("", s.deleteSession)
	session.POST("/items", s.setItems)
	session.POST("/datasets/:name", s.loadDataset)
	session.POST("/viewport", s.setViewport)
	session.GET("/updates", s.updates)
	session.GET("/clusters", s.clusters)
	session.GET("/summary", s.summary)

	return r
}

func (s *Server) createSession(c *gin.Context) {
	session, err := s.registry.Create()
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": session.ID})
}

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.List())
}

func (s *Server) deleteSession(c *gin.Context) {
	if err := s.registry.Delete(c.Param("id")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// setItems accepts either a generate request or a GeoJSON FeatureCollection.
func (s *Server) setItems(c *gin.Context) {
	session, err := s.registry.Get(c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		abort(c, badRequest(err))
		return
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		abort(c, badRequest(fmt.Errorf("invalid request: %w", err)))
		return
	}

	var items []*dataset.Item
	if probe.Type == "FeatureCollection" {
		items, err = dataset.DecodeGeoJSON(body)
		if err != nil {
			abort(c, badRequest(err))
			return
		}
	} else {
		items, err = generate(body)
		if err != nil {
			abort(c, badRequest(err))
			return
		}
	}

	if err := session.SetItems(items); err != nil {
		abort(c, err)
		return
	}

	logging.Logger().Info("items set", "session", session.ID, "items", len(items))
	c.JSON(http.StatusAccepted, gin.H{"items": len(items)})
}

func generate(body []byte) ([]*dataset.Item, error) {
	var req generateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid generate request: %w", err)
	}
	if req.Generate < 0 || req.Generate > MaxGenerate {
		return nil, fmt.Errorf("generate must be between 0 and %d", MaxGenerate)
	}

	bounds := DefaultBounds
	if req.Bounds != nil {
		bounds = *req.Bounds
		if !bounds.Valid() || !quadtree.World.Contains(bounds.North, bounds.West) ||
			!quadtree.World.Contains(bounds.South, bounds.East) {
			return nil, fmt.Errorf("%w: %+v", cluster.ErrInvalidViewport, bounds)
		}
	}

	seed := time.Now().UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}

	return dataset.Generate(req.Generate, bounds, seed), nil
}

func (s *Server) loadDataset(c *gin.Context) {
	session, err := s.registry.Get(c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	path, err := dataset.Resolve(s.dataDir, c.Param("name"))
	if err != nil {
		abort(c, badRequest(err))
		return
	}

	n, err := session.LoadDataset(path)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"items": n})
}

func (s *Server) setViewport(c *gin.Context) {
	session, err := s.registry.Get(c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	var req viewportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, badRequest(err))
		return
	}

	bounds := quadtree.Rect{North: *req.North, West: *req.West, South: *req.South, East: *req.East}
	if err := session.SetViewport(bounds, *req.Zoom); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

func (s *Server) updates(c *gin.Context) {
	session, err := s.registry.Get(c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	updates, resync := session.Updates()
	c.JSON(http.StatusOK, gin.H{"updates": updates, "resync": resync})
}

func (s *Server) clusters(c *gin.Context) {
	session, err := s.registry.Get(c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, cluster.ToGeoJSON(session.Clusters()))
}

func (s *Server) summary(c *gin.Context) {
	session, err := s.registry.Get(c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	summary := session.Summary()
	c.JSON(http.StatusOK, gin.H{"summary": summary, "topCategories": summary.TopCategories()})
}

func (s *Server) listDatasets(c *gin.Context) {
	infos, err := dataset.List(s.dataDir)
	if err != nil {
		abort(c, err)
		return
	}

	datasets := make([]datasetInfo, len(infos))
	for i, info := range infos {
		datasets[i] = datasetInfo{Info: info, Size: formatFileSize(info.FileSize)}
	}
	c.JSON(http.StatusOK, datasets)
}

type requestError struct {
	err error
}

func (e requestError) Error() string { return e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return requestError{err: err}
}

func statusOf(err error) int {
	var reqErr requestError
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, cluster.ErrInvalidViewport),
		errors.Is(err, cluster.ErrInvalidZoom),
		errors.Is(err, manager.ErrNilItems),
		errors.Is(err, dataset.ErrUnknownFormat),
		errors.Is(err, dataset.ErrBadFormat):
		return http.StatusBadRequest
	case errors.Is(err, runner.ErrSessionNotFound),
		errors.Is(err, manager.ErrClosed),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func abort(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logging.Logger().Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Logger().Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
