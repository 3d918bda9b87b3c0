// Package server exposes the push engine over HTTP.
//
//	POST /push          {databaseUrl, schema, force}
//	POST /plan          {databaseUrl, schema}
//	POST /apply-script  {databaseUrl, script}
//	GET  /healthz
//	GET  /metrics
//
// Requests against the same database URL run one at a time; requests against
// different databases run concurrently. Every response carries a pushId that is
// also attached to the request's log records.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/migration/applier"
	"github.com/stokaro/schemapush/migration/destructive"
	"github.com/stokaro/schemapush/migration/push"
	"github.com/stokaro/schemapush/schemafile"
)

// Opener opens the connector for a database URL. *registry.Registry
// implements it.
type Opener interface {
	Open(ctx context.Context, dbURL string) (connector.Connector, error)
}

// Server handles push requests.
type Server struct {
	opener  Opener
	locks   *keyedLocks
	metrics *Metrics
	logger  *slog.Logger
}

// New creates a server that opens databases through opener.
func New(opener Opener) *Server {
	return &Server{
		opener:  opener,
		locks:   newKeyedLocks(),
		metrics: NewMetrics(),
		logger:  slog.Default(),
	}
}

// WithLogger returns a copy of the server that logs to l. The copy shares the
// database locks and metrics.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	tmp := *s
	tmp.logger = l
	return &tmp
}

// Metrics returns the server's metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.POST("/push", s.handlePush)
	r.POST("/plan", s.handlePlan)
	r.POST("/apply-script", s.handleApplyScript)
	return r
}

type pushRequest struct {
	DatabaseURL string              `json:"databaseUrl" binding:"required"`
	Schema      *schemafile.Document `json:"schema" binding:"required"`
	Force       bool                `json:"force"`
}

type pushResponse struct {
	PushID string `json:"pushId"`
	*push.Result
}

type planResponse struct {
	PushID       string                `json:"pushId"`
	Steps        []string              `json:"steps"`
	SQL          []string              `json:"sql"`
	Warnings     []destructive.Finding `json:"warnings"`
	Unexecutable []destructive.Finding `json:"unexecutable"`
}

type applyScriptRequest struct {
	DatabaseURL string `json:"databaseUrl" binding:"required"`
	Script      string `json:"script"`
}

type errorResponse struct {
	PushID string `json:"pushId"`
	Error  string `json:"error"`
	// Set for failures while executing statements.
	AppliedSteps   *int  `json:"appliedSteps,omitempty"`
	NothingApplied *bool `json:"nothingApplied,omitempty"`
}

// session is one request holding the lock of its database.
type session struct {
	id     string
	conn   connector.Connector
	logger *slog.Logger
	close  func()
}

// open takes the database lock and opens the connector. On failure the error
// response has been written.
func (s *Server) open(c *gin.Context, dbURL string) (*session, bool) {
	id := uuid.NewString()
	logger := s.logger.With("push_id", id, "path", c.FullPath())

	release, err := s.locks.Lock(c.Request.Context(), dbURL)
	if err != nil {
		logger.Warn("request abandoned while waiting for the database", "error", err)
		c.JSON(http.StatusServiceUnavailable, errorResponse{PushID: id, Error: err.Error()})
		return nil, false
	}
	conn, err := s.opener.Open(c.Request.Context(), dbURL)
	if err != nil {
		release()
		logger.Error("failed to open database", "error", err)
		c.JSON(http.StatusBadGateway, errorResponse{PushID: id, Error: err.Error()})
		return nil, false
	}

	logger = logger.With("dialect", conn.Dialect())
	return &session{
		id:     id,
		conn:   conn,
		logger: logger,
		close: func() {
			if err := conn.Close(); err != nil {
				logger.Warn("failed to close database", "error", err)
			}
			release()
		},
	}, true
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// desiredSchema converts the request document. On failure the error response
// has been written.
func desiredSchema(c *gin.Context, doc *schemafile.Document) (*schema.Schema, bool) {
	desired, err := doc.Schema()
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return nil, false
	}
	return desired, true
}

func (s *Server) handlePush(c *gin.Context) {
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	desired, ok := desiredSchema(c, req.Schema)
	if !ok {
		return
	}

	start := time.Now()
	sess, ok := s.open(c, req.DatabaseURL)
	if !ok {
		return
	}
	defer sess.close()

	result, err := push.New(sess.conn).WithLogger(sess.logger).Push(c.Request.Context(), desired, req.Force)
	outcome := pushOutcome(result, err)
	executed := 0
	if result != nil {
		executed = result.ExecutedSteps
	}
	s.metrics.RecordPush(sess.conn.Dialect(), outcome, executed, time.Since(start))

	if err != nil {
		sess.logger.Error("push failed", "outcome", outcome, "error", err)
		s.writeError(c, sess.id, err)
		return
	}
	sess.logger.Info("push finished",
		"applied", result.Applied,
		"executed_steps", result.ExecutedSteps,
		"warnings", len(result.Warnings),
		"unexecutable", len(result.Unexecutable))
	c.JSON(http.StatusOK, pushResponse{PushID: sess.id, Result: result})
}

func pushOutcome(result *push.Result, err error) string {
	switch {
	case errors.Is(err, push.ErrPlanning):
		return OutcomePlanningError
	case err != nil:
		return OutcomeExecError
	case !result.Applied:
		return OutcomeBlocked
	default:
		return OutcomeApplied
	}
}

func (s *Server) handlePlan(c *gin.Context) {
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	desired, ok := desiredSchema(c, req.Schema)
	if !ok {
		return
	}

	sess, ok := s.open(c, req.DatabaseURL)
	if !ok {
		return
	}
	defer sess.close()

	plan, err := push.New(sess.conn).WithLogger(sess.logger).Plan(c.Request.Context(), desired)
	if err != nil {
		sess.logger.Error("plan failed", "error", err)
		s.writeError(c, sess.id, err)
		return
	}
	c.JSON(http.StatusOK, planResponse{
		PushID:       sess.id,
		Steps:        orEmpty(plan.Descriptions()),
		SQL:          orEmpty(plan.SQL()),
		Warnings:     findings(plan.Report.Warnings),
		Unexecutable: findings(plan.Report.Unexecutable),
	})
}

func (s *Server) handleApplyScript(c *gin.Context) {
	var req applyScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sess, ok := s.open(c, req.DatabaseURL)
	if !ok {
		return
	}
	defer sess.close()

	if err := push.New(sess.conn).WithLogger(sess.logger).ApplyScript(c.Request.Context(), req.Script); err != nil {
		sess.logger.Error("script failed", "error", err)
		s.writeError(c, sess.id, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// writeError maps planning errors to 422 and everything else to 500. Failed
// statements also report how much of the migration stayed applied.
func (s *Server) writeError(c *gin.Context, id string, err error) {
	resp := errorResponse{PushID: id, Error: err.Error()}
	if errors.Is(err, push.ErrPlanning) {
		c.JSON(http.StatusUnprocessableEntity, resp)
		return
	}
	var execErr *applier.ExecError
	if errors.As(err, &execErr) {
		applied := execErr.AppliedSteps
		nothing := execErr.NothingApplied()
		resp.AppliedSteps = &applied
		resp.NothingApplied = &nothing
	}
	c.JSON(http.StatusInternalServerError, resp)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func findings(f []destructive.Finding) []destructive.Finding {
	if f == nil {
		return []destructive.Finding{}
	}
	return f
}
