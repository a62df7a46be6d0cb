// Package web serves the browser chat page and its JSON API on hertz.
package web

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"log/slog"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/time/rate"

	"TutorChat/internal/chatbot"
	"TutorChat/internal/session"
	"TutorChat/internal/telemetry"
)

const (
	sessionCookie = "tutorchat_session"
	sessionHeader = "X-Session-ID"
)

//go:embed templates/index.html
var indexHTML string

// Options configures a Server
type Options struct {
	Bot          *chatbot.ChatBot
	Sessions     *session.Manager
	Title        string
	Greeting     string
	RateLimitRPS float64 // 0 disables limiting
	Logger       *slog.Logger
}

// Server holds the web front end state shared by all handlers
type Server struct {
	bot      *chatbot.ChatBot
	sessions *session.Manager
	title    string
	greeting string
	limiter  *rate.Limiter
	page     *template.Template
	markdown goldmark.Markdown
	logger   *slog.Logger
}

// New creates a Server
func New(opts Options) (*Server, error) {
	if opts.Bot == nil || opts.Sessions == nil {
		return nil, fmt.Errorf("bot and session manager are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	page, err := template.New("index").Parse(indexHTML)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}

	s := &Server{
		bot:      opts.Bot,
		sessions: opts.Sessions,
		title:    opts.Title,
		greeting: opts.Greeting,
		page:     page,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger:   opts.Logger,
	}

	if opts.RateLimitRPS > 0 {
		burst := int(opts.RateLimitRPS * 2)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}

	return s, nil
}

// Register mounts every route on h
func (s *Server) Register(h *server.Hertz) {
	h.Use(s.observe)

	h.GET("/", s.Index)
	h.POST("/chat", s.rateLimit, s.ChatForm)
	h.POST("/session/reset", s.ResetForm)

	api := h.Group("/api")
	api.POST("/chat", s.rateLimit, s.Chat)
	api.GET("/history", s.History)
	api.POST("/session/reset", s.Reset)
	api.GET("/health", s.Health)

	h.GET("/metrics", s.Metrics)
}

// Build creates a hertz server listening on addr with all routes registered
func (s *Server) Build(addr string) *server.Hertz {
	h := server.Default(server.WithHostPorts(addr))
	s.Register(h)
	return h
}

// SetFrameworkLogger routes hertz's own logging through slog onto output
func SetFrameworkLogger(output io.Writer, level slog.Level) {
	levelVar := &slog.LevelVar{}
	levelVar.Set(level)
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))
}

// resolveSession finds the caller's session by header or cookie, creating a
// fresh one for unknown IDs, and echoes the ID back to the client.
func (s *Server) resolveSession(ctx *app.RequestContext) *session.Session {
	id := string(ctx.GetHeader(sessionHeader))
	if id == "" {
		id = string(ctx.Cookie(sessionCookie))
	}

	sess, created := s.sessions.GetOrCreate(id)
	if created {
		s.logger.Info("session started", "session_id", sess.ID)
	}
	s.bindSession(ctx, sess)
	return sess
}

func (s *Server) bindSession(ctx *app.RequestContext, sess *session.Session) {
	ctx.SetCookie(sessionCookie, sess.ID, 0, "/", "", protocol.CookieSameSiteLaxMode, false, true)
	ctx.Header(sessionHeader, sess.ID)
}

// newSession discards the caller's current session, if any, and starts another
func (s *Server) newSession(ctx *app.RequestContext) *session.Session {
	id := string(ctx.GetHeader(sessionHeader))
	if id == "" {
		id = string(ctx.Cookie(sessionCookie))
	}
	if id != "" {
		s.sessions.Remove(id)
	}

	sess := s.sessions.Create()
	s.logger.Info("session reset", "previous_session_id", id, "session_id", sess.ID)
	s.bindSession(ctx, sess)
	return sess
}

// observe counts every request by route and status code
func (s *Server) observe(c context.Context, ctx *app.RequestContext) {
	ctx.Next(c)

	route := ctx.FullPath()
	if route == "" {
		route = "unmatched"
	}
	telemetry.HTTPRequestsTotal.WithLabelValues(route, fmt.Sprint(ctx.Response.StatusCode())).Inc()
}

// rateLimit rejects dispatches beyond the configured global rate
func (s *Server) rateLimit(c context.Context, ctx *app.RequestContext) {
	if s.limiter != nil && !s.limiter.Allow() {
		ctx.AbortWithStatusJSON(consts.StatusTooManyRequests, map[string]string{
			"error": "too many requests",
		})
		return
	}
	ctx.Next(c)
}
