package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"TutorChat/internal/backend"
	"TutorChat/internal/cache"
	"TutorChat/internal/session"
	"TutorChat/internal/telemetry"
)

var (
	// ErrEmptyInput is returned, without contacting the provider, for blank input
	ErrEmptyInput = errors.New("empty input")
	// ErrInference wraps every provider failure
	ErrInference = errors.New("inference failed")
)

// Recorder receives every committed turn, e.g. the transcript archive
type Recorder interface {
	Record(ctx context.Context, sess *session.Session, turn session.Turn) error
}

// Options configures a ChatBot
type Options struct {
	Provider     backend.Provider
	Cache        cache.Store // optional
	Recorder     Recorder    // optional
	Logger       *slog.Logger
	Tracer       trace.Tracer
	Meter        metric.Meter
	SystemPrompt string
	MemoryLength int
}

// ChatBot builds the bounded context window for each input, dispatches it
// to the provider and commits the resulting turn to the session history.
type ChatBot struct {
	provider     backend.Provider
	cache        cache.Store
	recorder     Recorder
	logger       *slog.Logger
	tracer       trace.Tracer
	systemPrompt string
	memoryLength int

	duration     metric.Float64Histogram
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
}

// New creates a ChatBot
func New(opts Options) (*ChatBot, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if opts.MemoryLength < 1 {
		return nil, fmt.Errorf("memory length must be at least 1, got %d", opts.MemoryLength)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil || opts.Meter == nil {
		tracer, meter := telemetry.Noop()
		if opts.Tracer == nil {
			opts.Tracer = tracer
		}
		if opts.Meter == nil {
			opts.Meter = meter
		}
	}

	cb := &ChatBot{
		provider:     opts.Provider,
		cache:        opts.Cache,
		recorder:     opts.Recorder,
		logger:       opts.Logger,
		tracer:       opts.Tracer,
		systemPrompt: opts.SystemPrompt,
		memoryLength: opts.MemoryLength,
	}

	var err error
	cb.duration, err = opts.Meter.Float64Histogram(
		"llm.request.duration",
		metric.WithDescription("LLM request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram: %w", err)
	}
	cb.inputTokens, err = opts.Meter.Int64Counter(
		"llm.usage.input_tokens",
		metric.WithDescription("Prompt tokens reported by the provider"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	cb.outputTokens, err = opts.Meter.Int64Counter(
		"llm.usage.output_tokens",
		metric.WithDescription("Completion tokens reported by the provider"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	return cb, nil
}

// MemoryLength returns how many past turns are replayed as context
func (cb *ChatBot) MemoryLength() int {
	return cb.memoryLength
}

// Provider returns the backend the bot dispatches to
func (cb *ChatBot) Provider() backend.Provider {
	return cb.provider
}

// Send dispatches one user input for sess and returns the committed turn.
// Blank input yields ErrEmptyInput; provider failures wrap ErrInference.
// History is only modified when a reply was obtained.
func (cb *ChatBot) Send(ctx context.Context, sess *session.Session, input string) (session.Turn, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		telemetry.DispatchTotal.WithLabelValues("empty_input").Inc()
		return session.Turn{}, ErrEmptyInput
	}

	sess.Lock()
	defer sess.Unlock()

	ctx, span := cb.tracer.Start(ctx, "chat_dispatch", trace.WithAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("llm.backend", cb.provider.Name()),
		attribute.String("llm.model", cb.provider.Model()),
	))
	defer span.End()

	recent := sess.History.Recent(cb.memoryLength)
	messages := BuildMessages(cb.systemPrompt, recent, input)
	span.SetAttributes(
		attribute.Int("context.turns", len(recent)),
		attribute.Int("context.messages", len(messages)),
	)

	reply, cached, err := cb.complete(ctx, messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.DispatchTotal.WithLabelValues("inference_error").Inc()
		cb.logger.Error("failed to get model reply",
			"session_id", sess.ID, "backend", cb.provider.Name(), "error", err)
		return session.Turn{}, fmt.Errorf("%w: %w", ErrInference, err)
	}

	turn := session.Turn{Human: input, AI: reply, CreatedAt: time.Now()}
	if err := sess.History.Append(turn); err != nil {
		return session.Turn{}, fmt.Errorf("failed to record turn: %w", err)
	}

	if cached {
		telemetry.DispatchTotal.WithLabelValues("cached").Inc()
	} else {
		telemetry.DispatchTotal.WithLabelValues("ok").Inc()
	}
	cb.logger.Info("turn completed",
		"session_id", sess.ID,
		"context_turns", len(recent),
		"history_len", sess.History.Len(),
		"cached", cached,
	)

	if cb.recorder != nil {
		if err := cb.recorder.Record(ctx, sess, turn); err != nil {
			cb.logger.Warn("failed to archive turn", "session_id", sess.ID, "error", err)
		}
	}

	return turn, nil
}

// complete returns the model reply for messages, consulting the cache first
func (cb *ChatBot) complete(ctx context.Context, messages []backend.Message) (string, bool, error) {
	var cacheKey string
	if cb.cache != nil {
		cacheKey = cache.GenerateCacheKey(cb.provider.Model(), messages)
		reply, ok, err := cb.cache.Get(ctx, cacheKey)
		if err != nil {
			cb.logger.Warn("failed to read reply cache", "error", err)
		} else if ok {
			cb.logger.Info("cache hit", "key", cacheKey[len(cacheKey)-16:])
			return reply, true, nil
		}
	}

	ctx, span := cb.tracer.Start(ctx, cb.provider.Name()+"_api_call")
	defer span.End()

	start := time.Now()
	completion, err := cb.provider.Complete(ctx, messages)
	elapsed := time.Since(start)

	attrs := metric.WithAttributes(attribute.String("llm.backend", cb.provider.Name()))
	cb.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	telemetry.DispatchDuration.WithLabelValues(cb.provider.Name()).Observe(elapsed.Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", false, err
	}

	cb.inputTokens.Add(ctx, int64(completion.InputTokens), attrs)
	cb.outputTokens.Add(ctx, int64(completion.OutputTokens), attrs)

	if cb.cache != nil {
		if err := cb.cache.Set(ctx, cacheKey, completion.Content); err != nil {
			cb.logger.Warn("failed to write reply cache", "error", err)
		}
	}

	return completion.Content, false, nil
}
