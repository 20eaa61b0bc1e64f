package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/suPer8Hu/research-chat/internal/ai"
	"github.com/suPer8Hu/research-chat/internal/common"
	"github.com/suPer8Hu/research-chat/internal/observe"
	"github.com/suPer8Hu/research-chat/internal/research"
	"go.uber.org/zap"
)

const (
	DefaultContextWindow = 20
	maxContextWindow     = 100
	defaultTemperature   = 0.7
)

// Generator produces the assistant's raw reply for a request.
type Generator interface {
	Generate(ctx context.Context, req ai.Request) (ai.Reply, error)
}

type ServiceOption func(*Service)

func WithLogger(log *zap.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithReporter(r observe.Reporter) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.reporter = r
		}
	}
}

// WithContextWindow sets how many earlier messages accompany a prompt.
// Values outside (0, 100] fall back to the default.
func WithContextWindow(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 && n <= maxContextWindow {
			s.window = n
		}
	}
}

// WithTimeout bounds every generation call. Zero disables the bound.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.timeout = d }
}

func WithGrounding(enabled bool) ServiceOption {
	return func(s *Service) { s.grounding = enabled }
}

func WithTemperature(t float32) ServiceOption {
	return func(s *Service) { s.temperature = ai.Float32(t) }
}

// Service runs the send cycle: append the prompt, generate, append the reply.
// At most one generation is in flight per session.
type Service struct {
	store  *Store
	gen    Generator
	parser *research.Parser

	window      int
	timeout     time.Duration
	grounding   bool
	temperature *float32

	log      *zap.Logger
	reporter observe.Reporter

	mu    sync.Mutex
	slots map[string]SendState
}

func NewService(store *Store, gen Generator, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("chat: store is required")
	}
	if gen == nil {
		return nil, errors.New("chat: generator is required")
	}
	s := &Service{
		store:       store,
		gen:         gen,
		parser:      research.NewParser(store.Locale()),
		window:      DefaultContextWindow,
		grounding:   true,
		temperature: ai.Float32(defaultTemperature),
		log:         zap.NewNop(),
		reporter:    observe.Nop(),
		slots:       make(map[string]SendState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) Store() *Store { return s.store }

type sendOptions struct {
	onChunk func(string)
}

type SendOption func(*sendOptions)

// WithOnChunk streams partial reply text to fn when the generator supports
// streaming. fn runs on the sending goroutine.
func WithOnChunk(fn func(string)) SendOption {
	return func(o *sendOptions) { o.onChunk = fn }
}

// Send sends text to the active session.
func (s *Service) Send(ctx context.Context, text string, opts ...SendOption) (Result, error) {
	return s.SendTo(ctx, s.store.ActiveSessionID(), text, opts...)
}

// SendTo runs one send cycle on sessionID. Blank input and sends to a busy
// session are ignored. A generation failure appends the fallback reply and
// yields a StateFailed result with a nil error.
func (s *Service) SendTo(ctx context.Context, sessionID, text string, opts ...SendOption) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{State: StateIgnored, Reason: ReasonEmptyInput, SessionID: sessionID}, nil
	}
	if _, ok := s.store.Session(sessionID); !ok {
		return Result{}, notFound(sessionID)
	}
	if !s.acquire(sessionID) {
		return Result{State: StateIgnored, Reason: ReasonInFlight, SessionID: sessionID}, nil
	}
	defer s.release(sessionID)

	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	history, _ := s.store.history(sessionID, s.window)

	userMsg := Message{
		ID:        common.MustULID(),
		Role:      RoleUser,
		Content:   text,
		Timestamp: s.store.clock(),
	}
	if err := s.store.AppendMessage(ctx, sessionID, userMsg); err != nil {
		return Result{}, err
	}

	req := s.buildRequest(history, text)
	reply, err := s.generate(ctx, req, o.onChunk)
	if err != nil {
		return s.fail(ctx, sessionID, userMsg, err)
	}

	parsed := s.parser.Parse(reply.Text)
	for _, src := range reply.Sources {
		parsed.Sources = append(parsed.Sources, research.Source{URI: src.URI, Title: src.Title})
	}
	assistant := Message{
		ID:        common.MustULID(),
		Role:      RoleAssistant,
		Content:   reply.Text,
		Timestamp: s.store.clock(),
		Parsed:    &parsed,
	}
	if err := s.store.AppendMessage(ctx, sessionID, assistant); err != nil {
		return Result{}, err
	}
	s.setState(sessionID, StateSucceeded)

	s.log.Info("reply generated",
		zap.String("session_id", sessionID),
		zap.String("type", parsed.Type),
		zap.Int("sources", len(parsed.Sources)),
	)
	return Result{State: StateSucceeded, SessionID: sessionID, User: &userMsg, Reply: &assistant}, nil
}

func (s *Service) fail(ctx context.Context, sessionID string, userMsg Message, cause error) (Result, error) {
	err := &Error{Kind: KindTransport, Reason: "generate reply", Err: cause}
	s.log.Warn("generation failed", zap.String("session_id", sessionID), zap.Error(cause))
	s.reporter.Report(ctx, observe.Record{
		Time:      s.store.clock(),
		Kind:      string(KindTransport),
		Reason:    "generate",
		SessionID: sessionID,
		Error:     cause.Error(),
	})

	fallback := Message{
		ID:        common.MustULID(),
		Role:      RoleAssistant,
		Content:   s.store.Locale().FallbackReply,
		Timestamp: s.store.clock(),
	}
	if appendErr := s.store.AppendMessage(ctx, sessionID, fallback); appendErr != nil {
		return Result{}, appendErr
	}
	s.setState(sessionID, StateFailed)
	return Result{State: StateFailed, SessionID: sessionID, User: &userMsg, Reply: &fallback, Err: err}, nil
}

func (s *Service) buildRequest(history []Message, prompt string) ai.Request {
	msgs := make([]ai.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, ai.Message{Role: string(m.Role), Content: m.Content})
	}
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: prompt})
	return ai.Request{
		SystemInstruction: s.store.Locale().SystemInstruction,
		Messages:          msgs,
		Grounding:         s.grounding,
		Temperature:       s.temperature,
	}
}

func (s *Service) generate(ctx context.Context, req ai.Request, onChunk func(string)) (ai.Reply, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var (
		reply ai.Reply
		err   error
	)
	if sp, ok := s.gen.(ai.StreamProvider); ok && onChunk != nil {
		reply, err = sp.GenerateStream(ctx, req, onChunk)
	} else {
		reply, err = s.gen.Generate(ctx, req)
	}
	if err != nil {
		return ai.Reply{}, err
	}
	if strings.TrimSpace(reply.Text) == "" {
		return ai.Reply{}, ai.ErrEmptyReply
	}
	return reply, nil
}

// InFlight reports whether a generation is outstanding for sessionID.
func (s *Service) InFlight(sessionID string) bool {
	return s.State(sessionID) == StateSending
}

func (s *Service) ActiveInFlight() bool {
	return s.InFlight(s.store.ActiveSessionID())
}

// State returns the slot state of sessionID; sessions without a send in
// progress are Idle.
func (s *Service) State(sessionID string) SendState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.slots[sessionID]; ok {
		return st
	}
	return StateIdle
}

func (s *Service) acquire(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.slots[sessionID]; busy {
		return false
	}
	s.slots[sessionID] = StateSending
	return true
}

func (s *Service) setState(sessionID string, st SendState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[sessionID] = st
}

// release returns the slot to Idle.
func (s *Service) release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, sessionID)
}
