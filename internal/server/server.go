// Package server exposes lipost sessions, publishing and generation over a
// JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/blacktop/lipost/internal/lipost"
	"github.com/blacktop/lipost/internal/lipost/linkedin"
	"github.com/blacktop/lipost/internal/lipost/publish"
	"github.com/blacktop/lipost/internal/llm"
	"github.com/blacktop/lipost/internal/logutil"
	"github.com/gin-gonic/gin"
)

// Response is the standard API response structure
type Response struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

// SessionRequest is the request body for POST /api/sessions
type SessionRequest struct {
	AccessToken string `json:"access_token" binding:"required"`
}

// GenerateRequest is the request body for POST /api/generate
type GenerateRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

// Publisher is the publishing surface the server drives.
type Publisher interface {
	Publish(ctx context.Context, s *publish.Session, d lipost.Draft) publish.Result
	Delete(ctx context.Context, s *publish.Session, urn string) error
	Connect(ctx context.Context, s *publish.Session) (*linkedin.Profile, error)
	Profile(ctx context.Context, s *publish.Session) (*linkedin.Profile, error)
}

// GenerateFunc produces post text for a prompt.
type GenerateFunc func(ctx context.Context, prompt string) (string, error)

// formOverhead is the allowance for multipart headers and text fields on top
// of the largest accepted media payload.
const formOverhead = 1 << 20

// Config wires a Server.
type Config struct {
	Addr      string
	APIKey    string
	Publisher Publisher
	Generate  GenerateFunc
	Store     *publish.Store
	// MaxBodyBytes caps a publish request body. Zero allows the largest
	// video plus form overhead.
	MaxBodyBytes int64
}

// Server is the HTTP server for lipost
type Server struct {
	addr      string
	apiKey    string
	publisher Publisher
	generate  GenerateFunc
	store     *publish.Store
	maxBody   int64
	engine    *gin.Engine
	server    *http.Server
}

// New creates a server and registers its routes.
func New(cfg Config) *Server {
	store := cfg.Store
	if store == nil {
		store = publish.NewStore()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = lipost.MaxVideoBytes + formOverhead
	}
	s := &Server{
		maxBody:   maxBody,
		addr:      cfg.Addr,
		apiKey:    cfg.APIKey,
		publisher: cfg.Publisher,
		generate:  cfg.Generate,
		store:     store,
	}

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.loggingMiddleware())
	if s.apiKey != "" {
		s.engine.Use(s.authMiddleware())
	}

	api := s.engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.POST("/generate", s.handleGenerate)
	api.POST("/sessions", s.handleCreateSession)
	api.GET("/sessions/:id", s.handleGetSession)
	api.DELETE("/sessions/:id", s.handleDeleteSession)
	api.GET("/sessions/:id/profile", s.handleProfile)
	api.POST("/sessions/:id/posts", s.handlePublish)
	api.GET("/sessions/:id/posts", s.handleListPosts)
	api.DELETE("/sessions/:id/posts/:urn", s.handleDeletePost)

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Response{Code: 404, Message: "not found"})
	})

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		// Video uploads and processing waits run inside a request.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured address until Stop is called.
func (s *Server) Start() error {
	logutil.Infof("starting lipost server on %s", s.addr)
	if s.apiKey != "" {
		logutil.Infof("API key authentication enabled")
	}
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Middleware

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/api/health" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-Key") != s.apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Code:    401,
				Message: "invalid or missing API key",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logutil.Infof("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Handlers

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Code: 200,
		Data: gin.H{
			"status":   "ok",
			"sessions": s.store.Len(),
		},
		Message: "everything is good",
	})
}

func (s *Server) handleGenerate(c *gin.Context) {
	if s.generate == nil {
		c.JSON(http.StatusServiceUnavailable, Response{Code: 503, Message: "text generation is not configured"})
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Code: 400, Message: "invalid request body: prompt is required"})
		return
	}

	text, err := s.generate(c.Request.Context(), req.Prompt)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Data:    gin.H{"text": text, "characters": len([]rune(text))},
		Message: "generated",
	})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Code: 400, Message: "invalid request body: access_token is required"})
		return
	}

	sess := s.store.Create(req.AccessToken)
	profile, err := s.publisher.Connect(c.Request.Context(), sess)
	if err != nil {
		s.store.Delete(sess.ID)
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Code:    201,
		Data:    sessionView(sess, profile),
		Message: "connected to LinkedIn",
	})
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, Response{Code: 200, Data: sessionView(sess, sess.CachedProfile()), Message: "ok"})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	s.store.Delete(sess.ID)
	c.JSON(http.StatusOK, Response{Code: 200, Message: "session closed"})
}

func (s *Server) handleProfile(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	profile, err := s.publisher.Profile(c.Request.Context(), sess)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Code: 200, Data: profileView(profile), Message: "ok"})
}

func (s *Server) handlePublish(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBody)
	if err := c.Request.ParseMultipartForm(s.engine.MaxMultipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, Response{
				Code:    413,
				Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		c.JSON(http.StatusBadRequest, Response{Code: 400, Message: fmt.Sprintf("invalid form: %v", err)})
		return
	}

	draft := lipost.Draft{
		Text:    c.PostForm("text"),
		AltText: c.PostForm("alt_text"),
	}

	fh, err := c.FormFile("media")
	switch {
	case err == nil:
		media, err := readMedia(fh, lipost.MediaKind(c.PostForm("kind")))
		if err != nil {
			s.fail(c, err)
			return
		}
		draft.Media = media
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		c.JSON(http.StatusBadRequest, Response{Code: 400, Message: fmt.Sprintf("invalid form: %v", err)})
		return
	}

	res := s.publisher.Publish(c.Request.Context(), sess, draft)
	if res.Err != nil {
		s.fail(c, res.Err)
		return
	}

	message := "post published"
	if res.Degraded {
		message = res.Reason()
	}
	c.JSON(http.StatusCreated, Response{Code: 201, Data: resultView(res), Message: message})
}

func (s *Server) handleListPosts(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, Response{Code: 200, Data: sess.History(), Message: "ok"})
}

func (s *Server) handleDeletePost(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	urn := c.Param("urn")
	if err := s.publisher.Delete(c.Request.Context(), sess, urn); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Code: 200, Data: gin.H{"id": urn}, Message: "post deleted"})
}

func (s *Server) session(c *gin.Context) (*publish.Session, bool) {
	sess, ok := s.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, Response{Code: 404, Message: "session not found"})
		return nil, false
	}
	return sess, true
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusFor(err)
	var data any
	var serr *linkedin.StatusError
	if errors.As(err, &serr) {
		data = gin.H{"status": serr.StatusCode, "body": serr.Body}
	}
	if code >= http.StatusInternalServerError {
		logutil.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(code, Response{Code: code, Data: data, Message: err.Error()})
}

func statusFor(err error) int {
	var (
		tooLarge   lipost.PayloadTooLargeError
		validation lipost.ValidationError
		upstream   *linkedin.StatusError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &validation), errors.Is(err, publish.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, publish.ErrMissingToken):
		return http.StatusUnauthorized
	case errors.Is(err, linkedin.ErrPostNotFound):
		return http.StatusNotFound
	case errors.Is(err, linkedin.ErrForbidden):
		return http.StatusForbidden
	case llm.IsRateLimited(err):
		return http.StatusTooManyRequests
	case errors.Is(err, publish.ErrConnectionFailed),
		errors.Is(err, publish.ErrIdentityUnresolved),
		errors.As(err, &upstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func readMedia(fh *multipart.FileHeader, kind lipost.MediaKind) (*lipost.Media, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, lipost.MaxVideoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return lipost.NewMedia(kind, data, fh.Filename)
}

func sessionView(s *publish.Session, profile *linkedin.Profile) gin.H {
	view := gin.H{
		"id":         s.ID,
		"created_at": s.CreatedAt,
		"author":     s.Author(),
		"posts":      len(s.History()),
	}
	if profile != nil {
		view["profile"] = profileView(profile)
	}
	if last, ok := s.Last(); ok {
		view["last_published"] = last
	}
	return view
}

func profileView(p *linkedin.Profile) gin.H {
	return gin.H{
		"id":      p.ID,
		"name":    p.Name,
		"email":   p.Email,
		"picture": p.Picture,
		"url":     p.URL(),
	}
}

func resultView(res publish.Result) gin.H {
	mirrors := make([]gin.H, 0, len(res.Mirrors))
	for _, m := range res.Mirrors {
		entry := gin.H{"network": m.Network, "url": m.Receipt.URL}
		if m.Err != nil {
			entry["error"] = m.Err.Error()
		}
		mirrors = append(mirrors, entry)
	}
	return gin.H{
		"id":           res.PostID,
		"url":          res.URL,
		"activity_url": linkedin.ActivityURL(res.PostID),
		"type":         res.Kind,
		"degraded":     res.Degraded,
		"reason":       res.Reason(),
		"processing":   res.Processing,
		"mirrors":      mirrors,
	}
}
