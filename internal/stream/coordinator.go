package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/metrics"
	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/timeutil"
)

const (
	defaultGenerationTimeout = 30 * time.Second
	defaultMaxSources        = 3
)

type MessageStore interface {
	AppendMessage(ctx context.Context, msg *model.Message) error
}

type Config struct {
	GenerationTimeout time.Duration
	MaxSources        int
}

// Request is everything needed to produce and persist one answer.
type Request struct {
	ConversationID string
	Prompt         *ai.GenerateRequest
	Sources        []model.Source
	Confidence     model.Confidence
}

type state int

const (
	stateInit state = iota
	stateStreaming
	stateFinalizing
	stateError
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateStreaming:
		return "streaming"
	case stateFinalizing:
		return "finalizing"
	case stateError:
		return "error"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// Coordinator turns a generation into an ordered event stream and stores the
// resulting assistant message.
type Coordinator struct {
	gen   ai.IStreamGenerator
	store MessageStore
	cfg   Config
}

func NewCoordinator(gen ai.IStreamGenerator, store MessageStore, cfg Config) *Coordinator {
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = defaultGenerationTimeout
	}
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = defaultMaxSources
	}
	return &Coordinator{gen: gen, store: store, cfg: cfg}
}

// Run starts generating and returns the event channel. The channel carries
// text events, then sources and one confidence event, then done; or a single
// error event at any point. It is closed after the terminal event. Once ctx
// is cancelled nothing more is sent.
func (c *Coordinator) Run(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event)
	go c.run(ctx, req, out)
	return out
}

type session struct {
	ctx    context.Context
	out    chan<- Event
	state  state
	logger *zap.Logger
}

func (s *session) emit(ev Event) bool {
	if s.ctx.Err() != nil {
		return false
	}
	select {
	case s.out <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// emitWithin is emit bounded by the generation deadline as well. It returns
// the context error that stopped it.
func (s *session) emitWithin(gctx context.Context, ev Event) error {
	if err := gctx.Err(); err != nil {
		return err
	}
	select {
	case s.out <- ev:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	case <-gctx.Done():
		return gctx.Err()
	}
}

func (s *session) transition(to state) {
	s.logger.Debug("stream state change", zap.Stringer("from", s.state), zap.Stringer("to", to))
	s.state = to
}

func (c *Coordinator) run(ctx context.Context, req Request, out chan<- Event) {
	s := &session{
		ctx:    ctx,
		out:    out,
		state:  stateInit,
		logger: logutil.GetLogger(ctx).With(zap.String("conversation_id", req.ConversationID)),
	}
	defer func() {
		s.transition(stateClosed)
		close(out)
	}()

	gctx, cancel := context.WithTimeout(ctx, c.cfg.GenerationTimeout)
	defer cancel()
	tokens, err := c.gen.Stream(gctx, req.Prompt)
	if err != nil {
		c.fail(s, gctx, err)
		return
	}
	defer tokens.Close()

	s.transition(stateStreaming)
	var answer strings.Builder
	for {
		tok, err := tokens.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.fail(s, gctx, err)
			return
		}
		if gctx.Err() != nil {
			c.fail(s, gctx, gctx.Err())
			return
		}
		answer.WriteString(tok)
		if err := s.emitWithin(gctx, TextEvent(tok)); err != nil {
			c.fail(s, gctx, err)
			return
		}
	}

	s.transition(stateFinalizing)
	sources := req.Sources
	if len(sources) > c.cfg.MaxSources {
		sources = sources[:c.cfg.MaxSources]
	}
	for _, src := range sources {
		if !s.emit(SourceEvent(src)) {
			c.cancelled(s)
			return
		}
	}
	if !s.emit(ConfidenceEvent(req.Confidence)) {
		c.cancelled(s)
		return
	}

	msg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		Role:           model.RoleAssistant,
		Content:        answer.String(),
		Sources:        sources,
		Confidence:     req.Confidence,
		Ctime:          timeutil.NowUnixMilli(),
	}
	if err := c.store.AppendMessage(ctx, msg); err != nil {
		if ctx.Err() != nil {
			c.cancelled(s)
			return
		}
		s.transition(stateError)
		s.logger.Error("save assistant message failed", zap.Error(err))
		metrics.StreamOutcomeTotal.WithLabelValues(CodeSaveError).Inc()
		s.emit(ErrorEvent(CodeSaveError, "the answer could not be saved"))
		return
	}
	metrics.StreamOutcomeTotal.WithLabelValues("done").Inc()
	s.emit(DoneEvent(req.ConversationID, msg.ID))
}

func (c *Coordinator) fail(s *session, gctx context.Context, err error) {
	if s.ctx.Err() != nil {
		c.cancelled(s)
		return
	}
	s.transition(stateError)
	code := ClassifyError(err)
	if errors.Is(gctx.Err(), context.DeadlineExceeded) {
		code = CodeTimeout
	}
	s.logger.Error("generation failed", zap.String("code", code), zap.Error(err))
	metrics.StreamOutcomeTotal.WithLabelValues(code).Inc()
	s.emit(ErrorEvent(code, errorMessage(code)))
}

func (c *Coordinator) cancelled(s *session) {
	s.transition(stateError)
	s.logger.Info("answer stream cancelled by caller")
	metrics.StreamOutcomeTotal.WithLabelValues("cancelled").Inc()
}

// ClassifyError maps a generation error onto a stream error code.
func ClassifyError(err error) string {
	switch {
	case errors.Is(err, ai.ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ai.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	}
	return CodeGenerationError
}

func errorMessage(code string) string {
	switch code {
	case CodeRateLimited:
		return "the language model is busy, please retry shortly"
	case CodeTimeout:
		return "the answer took too long to generate"
	}
	return "the answer could not be generated"
}
