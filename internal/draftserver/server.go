package draftserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"replydraft/internal/drafts"
	"replydraft/internal/logging"
	"replydraft/internal/metrics"

	"github.com/gin-gonic/gin"
)

// DraftService produces a verdict (and maybe a draft) for a request.
type DraftService interface {
	Draft(ctx context.Context, req drafts.Request) (*drafts.Response, error)
}

// draftBody mirrors drafts.Request with binding rules.
type draftBody struct {
	SenderName          string   `json:"sender_name" binding:"required"`
	SenderHeadline      string   `json:"sender_headline,omitempty"`
	MessageText         string   `json:"message_text" binding:"required"`
	ConversationContext []string `json:"conversation_context"`
	ConversationID      string   `json:"conversation_id" binding:"required"`
}

// Server is the HTTP front of the drafting service.
type Server struct {
	engine  *gin.Engine
	service DraftService
	secret  string
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewServer builds the routes. Requests to the draft endpoint must carry
// "Bearer <secret>"; an empty secret rejects every request.
func NewServer(service DraftService, secret string, m *metrics.Metrics) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{
		engine:  engine,
		service: service,
		secret:  secret,
		metrics: m,
		now:     time.Now,
	}
	engine.GET(drafts.HealthPath, s.handleHealth)
	engine.POST(drafts.DraftPath, s.requireBearer(), s.handleDraft)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Engine exposes the router so callers can mount extra routes.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logging.Server("drafting service listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errc
		return nil
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDraft(c *gin.Context) {
	var body draftBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	req := drafts.Request(body)
	if req.ConversationContext == nil {
		req.ConversationContext = []string{}
	}

	resp, err := s.service.Draft(c.Request.Context(), req)
	if err != nil {
		logging.ServerError("draft %s: %v", req.ConversationID, err)
		s.metrics.ObserveServed("error")
		c.JSON(http.StatusBadGateway, gin.H{"error": "draft generation failed"})
		return
	}

	verdict := "no_response"
	if resp.NeedsResponse {
		verdict = "needs_response"
	}
	s.metrics.ObserveServed(verdict)
	logging.Server("draft %s: %s (urgency=%s)", req.ConversationID, verdict, resp.Urgency)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) requireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := "Bearer " + s.secret
		got := c.GetHeader("Authorization")
		if s.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, drafts.HealthPath) {
			return
		}
		logging.Get(logging.CategoryServer).Debug("%s %s -> %d in %v",
			c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
