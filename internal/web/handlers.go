package web

import (
	"bytes"
	"context"
	"errors"
	"html/template"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"TutorChat/internal/chatbot"
	"TutorChat/internal/session"
	"TutorChat/internal/telemetry"
)

// ChatRequest is the JSON body accepted by POST /api/chat
type ChatRequest struct {
	Question string `json:"question"`
}

// ChatResponse is returned by POST /api/chat
type ChatResponse struct {
	SessionID string         `json:"session_id"`
	Turn      session.Turn   `json:"turn"`
	History   []session.Turn `json:"history"`
}

// HistoryResponse is returned by GET /api/history
type HistoryResponse struct {
	SessionID string         `json:"session_id"`
	Turns     []session.Turn `json:"turns"`
}

type turnView struct {
	Human string
	AI    template.HTML
}

type pageView struct {
	Title    string
	Greeting string
	Turns    []turnView
	Error    string
}

// Index renders the chat page with the caller's full history
func (s *Server) Index(c context.Context, ctx *app.RequestContext) {
	sess := s.resolveSession(ctx)
	s.renderPage(ctx, consts.StatusOK, sess, "")
}

// ChatForm handles the page's form post and redirects back to the page
func (s *Server) ChatForm(c context.Context, ctx *app.RequestContext) {
	sess := s.resolveSession(ctx)

	_, err := s.bot.Send(c, sess, ctx.PostForm("question"))
	if err != nil {
		status, message := dispatchStatus(err)
		s.renderPage(ctx, status, sess, message)
		return
	}

	ctx.Redirect(consts.StatusSeeOther, []byte("/"))
}

// ResetForm starts a new conversation from the page
func (s *Server) ResetForm(c context.Context, ctx *app.RequestContext) {
	s.newSession(ctx)
	ctx.Redirect(consts.StatusSeeOther, []byte("/"))
}

// Chat dispatches one question and returns the committed turn with the full history
// POST /api/chat
func (s *Server) Chat(c context.Context, ctx *app.RequestContext) {
	var req ChatRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
		return
	}

	sess := s.resolveSession(ctx)
	turn, err := s.bot.Send(c, sess, req.Question)
	if err != nil {
		status, message := dispatchStatus(err)
		ctx.JSON(status, map[string]string{
			"session_id": sess.ID,
			"error":      message,
		})
		return
	}

	ctx.JSON(consts.StatusOK, ChatResponse{
		SessionID: sess.ID,
		Turn:      turn,
		History:   sess.History.All(),
	})
}

// History returns every turn of the caller's session
// GET /api/history
func (s *Server) History(c context.Context, ctx *app.RequestContext) {
	sess := s.resolveSession(ctx)
	ctx.JSON(consts.StatusOK, HistoryResponse{
		SessionID: sess.ID,
		Turns:     sess.History.All(),
	})
}

// Reset discards the caller's session and starts a new one
// POST /api/session/reset
func (s *Server) Reset(c context.Context, ctx *app.RequestContext) {
	sess := s.newSession(ctx)
	ctx.JSON(consts.StatusOK, map[string]string{
		"session_id": sess.ID,
	})
}

// Health reports liveness
// GET /api/health
func (s *Server) Health(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]string{
		"status":  "ok",
		"backend": s.bot.Provider().Name(),
		"model":   s.bot.Provider().Model(),
	})
}

// Metrics exposes the Prometheus registry in text format
// GET /metrics
func (s *Server) Metrics(c context.Context, ctx *app.RequestContext) {
	telemetry.ActiveSessions.Set(float64(s.sessions.Count()))

	var buf bytes.Buffer
	if err := telemetry.WritePrometheus(&buf); err != nil {
		s.logger.Error("failed to encode metrics", "error", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error": "failed to encode metrics",
		})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

func (s *Server) renderPage(ctx *app.RequestContext, status int, sess *session.Session, errMessage string) {
	turns := sess.History.All()
	view := pageView{
		Title:    s.title,
		Greeting: s.greeting,
		Turns:    make([]turnView, 0, len(turns)),
		Error:    errMessage,
	}
	for _, turn := range turns {
		view.Turns = append(view.Turns, turnView{Human: turn.Human, AI: s.renderMarkdown(turn.AI)})
	}

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, view); err != nil {
		s.logger.Error("failed to render page", "error", err)
		ctx.String(consts.StatusInternalServerError, "failed to render page")
		return
	}
	ctx.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

// renderMarkdown converts model output to HTML; raw HTML in the source is omitted
func (s *Server) renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

// dispatchStatus maps a dispatch error to an HTTP status and user-facing message
func dispatchStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chatbot.ErrEmptyInput):
		return consts.StatusBadRequest, "Please enter a question."
	case errors.Is(err, chatbot.ErrInference):
		return consts.StatusBadGateway, "The model could not answer right now: " + err.Error()
	default:
		return consts.StatusInternalServerError, err.Error()
	}
}
