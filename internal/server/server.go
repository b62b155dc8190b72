// Package server exposes the memory store over a local JSON HTTP API.
//
// The API mirrors the MCP tools one to one so scripts, editors without MCP
// support and the end-to-end tests can drive the same operations.
package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wty0512/memory-mcp-server/internal/export"
	"github.com/wty0512/memory-mcp-server/internal/logger"
	"github.com/wty0512/memory-mcp-server/internal/store"
)

// maxImportBytes bounds an import payload. Larger bodies are rejected,
// never truncated.
var maxImportBytes int64 = 32 << 20

type Server struct {
	backend store.Backend
	port    int
	router  *gin.Engine
}

func New(b store.Backend, port int) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{backend: b, port: port, router: router}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.GET("/health", s.handleHealth)

	r.POST("/entries", s.handleCreate(store.ScopeProject))
	r.GET("/entries/:id", s.handleGet)
	r.POST("/entries/edit", s.handleEdit)
	r.POST("/entries/delete", s.handleDelete)

	r.GET("/search", s.handleSearch(store.ScopeProject))
	r.POST("/import", s.handleImport)

	projects := r.Group("/projects")
	{
		projects.GET("", s.handleListProjects)
		projects.GET("/:project/entries", s.handleList(store.ScopeProject))
		projects.GET("/:project/stats", s.handleStats(store.ScopeProject))
		projects.GET("/:project/export", s.handleExport(store.ScopeProject))
		projects.DELETE("/:project", s.handleDeleteProject)
	}

	global := r.Group("/global")
	{
		global.POST("/entries", s.handleCreate(store.ScopeGlobal))
		global.GET("/entries", s.handleList(store.ScopeGlobal))
		global.GET("/search", s.handleSearch(store.ScopeGlobal))
		global.GET("/stats", s.handleStats(store.ScopeGlobal))
		global.GET("/export", s.handleExport(store.ScopeGlobal))
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	logger.ForComponent("http").Info("listening", "addr", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "memory-mcp"})
}

func (s *Server) handleCreate(scope store.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p store.CreateParams
		if err := c.ShouldBindJSON(&p); err != nil {
			writeError(c, store.Validation("create", "body", "invalid json: %v", err))
			return
		}
		p.Scope = scope

		id, err := s.backend.Create(p)
		if err != nil {
			writeError(c, err)
			return
		}
		e, err := s.backend.Get(id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id, "entry": e})
	}
}

func (s *Server) handleGet(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, store.Validation("get", "entry_id", "invalid entry id %q", c.Param("id")))
		return
	}
	e, err := s.backend.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) handleList(scope store.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset, err := paging(c)
		if err != nil {
			writeError(c, err)
			return
		}
		project := c.Param("project")
		entries, err := s.backend.List(store.ListOptions{
			Scope:   scope,
			Project: project,
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"project": project, "count": len(entries), "entries": entries})
	}
}

// editRequest is a selector and a patch in one body.
type editRequest struct {
	store.Selector
	store.Patch
}

func (s *Server) handleEdit(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, store.Validation("update", "body", "invalid json: %v", err))
		return
	}
	n, err := s.backend.Update(req.Selector, req.Patch)
	if err != nil {
		writeError(c, store.WithProjectHint(err, s.backend, req.Project))
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (s *Server) handleDelete(c *gin.Context) {
	var sel store.Selector
	if err := c.ShouldBindJSON(&sel); err != nil {
		writeError(c, store.Validation("delete", "body", "invalid json: %v", err))
		return
	}
	n, err := s.backend.Delete(sel)
	if err != nil {
		writeError(c, store.WithProjectHint(err, s.backend, sel.Project))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (s *Server) handleDeleteProject(c *gin.Context) {
	project := c.Param("project")
	n, err := s.backend.DeleteProject(project)
	if err != nil {
		writeError(c, store.WithProjectHint(err, s.backend, project))
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project, "deleted": n})
}

func (s *Server) handleListProjects(c *gin.Context) {
	projects, err := s.backend.ListProjects()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(projects), "projects": projects})
}

func (s *Server) handleSearch(scope store.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := queryInt(c, "limit")
		if err != nil {
			writeError(c, err)
			return
		}
		opts := store.SearchOptions{
			Scope:    scope,
			Category: c.Query("category"),
			Limit:    limit,
		}
		if scope == store.ScopeProject {
			opts.Project = c.Query("project")
		}
		query := c.Query("q")
		results, err := s.backend.Search(query, opts)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"query": query, "count": len(results), "results": results})
	}
}

func (s *Server) handleStats(scope store.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		project := c.Param("project")
		sum, err := s.backend.Stats(scope, project)
		if err != nil {
			writeError(c, store.WithProjectHint(err, s.backend, project))
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}

func (s *Server) handleExport(scope store.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		format, err := export.ParseFormat(c.Query("format"))
		if err != nil {
			writeError(c, err)
			return
		}
		includeMeta := true
		if v := c.Query("include_metadata"); v != "" {
			if includeMeta, err = strconv.ParseBool(v); err != nil {
				writeError(c, store.Validation("export", "include_metadata", "invalid boolean %q", v))
				return
			}
		}

		project := c.Param("project")
		entries, err := s.backend.List(store.ListOptions{Scope: scope, Project: project})
		if err != nil {
			writeError(c, err)
			return
		}
		if scope == store.ScopeProject && len(entries) == 0 {
			writeError(c, store.WithProjectHint(store.NotFound("export", "project %q has no entries", project), s.backend, project))
			return
		}
		// Documents read top to bottom, oldest first.
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}

		var buf bytes.Buffer
		err = export.Encode(&buf, entries, export.Options{
			Format:          format,
			IncludeMetadata: includeMeta,
			Title:           project,
			Global:          scope == store.ScopeGlobal,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.Data(http.StatusOK, contentType(format), buf.Bytes())
	}
}

func (s *Server) handleImport(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		writeError(c, err)
		return
	}
	scope := store.ScopeProject
	if v := c.Query("scope"); v != "" {
		if scope, err = store.ParseScope(v); err != nil {
			writeError(c, err)
			return
		}
	}
	// json carries ids; keeping them is what makes an export round trip.
	preserve := format == export.JSON
	if v := c.Query("preserve_ids"); v != "" {
		if preserve, err = strconv.ParseBool(v); err != nil {
			writeError(c, store.Validation("import", "preserve_ids", "invalid boolean %q", v))
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes+1))
	if err != nil {
		writeError(c, store.Format("import", err, "read request body"))
		return
	}
	if int64(len(body)) > maxImportBytes {
		writeError(c, store.Format("import", nil, "payload exceeds %d bytes", maxImportBytes))
		return
	}
	entries, err := export.Decode(bytes.NewReader(body), format)
	if err != nil {
		writeError(c, err)
		return
	}
	n, err := s.backend.Import(entries, store.ImportOptions{
		Scope:       scope,
		Project:     c.Query("project"),
		PreserveIDs: preserve,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"imported": n})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch store.KindOf(err) {
	case store.KindValidation:
		return http.StatusBadRequest
	case store.KindNotFound:
		return http.StatusNotFound
	case store.KindConflict:
		return http.StatusConflict
	case store.KindFormat:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.ForComponent("http").Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	body := gin.H{
		"kind":    store.KindOf(err),
		"message": err.Error(),
	}
	if field := store.FieldOf(err); field != "" {
		body["field"] = field
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

func paging(c *gin.Context) (limit, offset int, err error) {
	if limit, err = queryInt(c, "limit"); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(c, "offset"); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, store.Validation("query", key, "%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func contentType(f export.Format) string {
	switch f {
	case export.JSON:
		return "application/json; charset=utf-8"
	case export.CSV:
		return "text/csv; charset=utf-8"
	case export.Markdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.ForComponent("http").Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
