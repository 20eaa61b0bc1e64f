package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/suPer8Hu/research-chat/internal/common"
	"github.com/suPer8Hu/research-chat/internal/observe"
	"github.com/suPer8Hu/research-chat/internal/research"
	"github.com/suPer8Hu/research-chat/internal/store"
	"go.uber.org/zap"
)

const (
	DefaultBlobKey     = "research_sessions"
	DefaultTitleLength = 30
	titleEllipsis      = "..."
)

// BlobStore persists opaque bytes under a key. Load returns store.ErrNotFound
// for a missing key.
type BlobStore interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// Order decides where a session sits in the list.
type Order int

const (
	// OrderCreated keeps sessions newest-created first.
	OrderCreated Order = iota
	// OrderUpdated moves a session to the front whenever a message is appended.
	OrderUpdated
)

func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "created":
		return OrderCreated, nil
	case "updated":
		return OrderUpdated, nil
	default:
		return OrderCreated, fmt.Errorf("chat: unknown session order %q", s)
	}
}

type StoreOption func(*Store)

func WithStoreLogger(log *zap.Logger) StoreOption {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

func WithStoreReporter(r observe.Reporter) StoreOption {
	return func(s *Store) {
		if r != nil {
			s.reporter = r
		}
	}
}

func WithLocale(loc research.Locale) StoreOption {
	return func(s *Store) { s.locale = loc }
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithBlobKey(key string) StoreOption {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithOrder(o Order) StoreOption {
	return func(s *Store) { s.order = o }
}

func WithTitleLength(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.titleLen = n
		}
	}
}

// Store is the authoritative, ordered list of sessions. Every mutation is
// written through to the blob store while the lock is held.
type Store struct {
	mu       sync.RWMutex
	sessions []Session
	activeID string

	blobs    BlobStore
	key      string
	order    Order
	titleLen int
	locale   research.Locale
	now      func() time.Time
	log      *zap.Logger
	reporter observe.Reporter
}

func NewStore(blobs BlobStore, opts ...StoreOption) *Store {
	s := &Store{
		blobs:    blobs,
		key:      DefaultBlobKey,
		order:    OrderCreated,
		titleLen: DefaultTitleLength,
		locale:   research.Indonesian(),
		now:      time.Now,
		log:      zap.NewNop(),
		reporter: observe.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Locale() research.Locale { return s.locale }

func (s *Store) clock() time.Time { return s.now().UTC() }

// Restore replaces the in-memory list with the persisted one. A missing,
// empty, unreadable or corrupt blob is discarded and a single fresh session
// takes its place.
func (s *Store) Restore(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load(ctx)
	if err != nil {
		s.log.Warn("discarding persisted sessions", zap.String("key", s.key), zap.Error(err))
		s.report(ctx, "restore", err)
	}
	if len(sessions) == 0 {
		s.sessions = nil
		s.activeID = ""
		s.createLocked(ctx)
		return
	}

	s.sessions = sessions
	s.activeID = sessions[0].ID
	s.log.Info("sessions restored", zap.Int("count", len(sessions)))
}

// load returns (nil, nil) when nothing has been stored yet.
func (s *Store) load(ctx context.Context) ([]Session, error) {
	data, err := s.blobs.Load(ctx, s.key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chat: load sessions: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var decoded []Session
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("chat: decode sessions: %w", err)
	}

	out := make([]Session, 0, len(decoded))
	seen := make(map[string]bool, len(decoded))
	for _, sess := range decoded {
		if sess.ID == "" || seen[sess.ID] {
			continue
		}
		seen[sess.ID] = true
		if sess.Messages == nil {
			sess.Messages = []Message{}
		}
		sess.UpdatedAt = sess.UpdatedAt.UTC()
		for i := range sess.Messages {
			sess.Messages[i].Timestamp = sess.Messages[i].Timestamp.UTC()
		}
		out = append(out, sess)
	}
	return out, nil
}

// Persist writes the full session list to the blob store.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistLocked(ctx)
}

func (s *Store) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(s.sessions)
	if err != nil {
		return &Error{Kind: KindPersistence, Reason: "encode sessions", Err: err}
	}
	if err := s.blobs.Save(ctx, s.key, data); err != nil {
		return &Error{Kind: KindPersistence, Reason: "save sessions", Err: err}
	}
	return nil
}

// writeThrough persists after a mutation. The save is detached from ctx
// cancellation so a dropped caller cannot lose an appended message. Failures
// leave the in-memory state valid and are only logged and reported.
func (s *Store) writeThrough(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := s.persistLocked(ctx); err != nil {
		s.log.Error("persist sessions failed", zap.String("key", s.key), zap.Error(err))
		s.report(ctx, "persist", err)
	}
}

func (s *Store) report(ctx context.Context, reason string, err error) {
	s.reporter.Report(ctx, observe.Record{
		Time:   s.clock(),
		Kind:   string(KindPersistence),
		Reason: reason,
		Error:  err.Error(),
		Fields: map[string]string{"key": s.key},
	})
}

// ListSessions returns deep copies in store order.
func (s *Store) ListSessions() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.clone()
	}
	return out
}

func (s *Store) Session(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return Session{}, false
	}
	return s.sessions[i].clone(), true
}

func (s *Store) ActiveSessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

func (s *Store) ActiveSession() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(s.activeID)
	if i < 0 {
		return Session{}, false
	}
	return s.sessions[i].clone(), true
}

// CreateSession prepends an empty session and makes it active.
func (s *Store) CreateSession(ctx context.Context) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(ctx).clone()
}

func (s *Store) createLocked(ctx context.Context) Session {
	sess := Session{
		ID:        common.MustULID(),
		Title:     s.locale.NewSessionTitle,
		Messages:  []Message{},
		UpdatedAt: s.clock(),
	}
	s.sessions = append([]Session{sess}, s.sessions...)
	s.activeID = sess.ID
	s.writeThrough(ctx)
	return sess
}

// SelectSession makes id active. Unknown ids are ignored.
func (s *Store) SelectSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(id) < 0 {
		return false
	}
	s.activeID = id
	return true
}

// AppendMessage adds msg to the session. The first user message of a session
// also becomes its title.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("chat: invalid message role %q", msg.Role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(sessionID)
	if i < 0 {
		return notFound(sessionID)
	}

	now := s.clock()
	if msg.ID == "" {
		msg.ID = common.MustULID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	msg.Timestamp = msg.Timestamp.UTC()
	msg = msg.clone()

	sess := &s.sessions[i]
	if len(sess.Messages) == 0 && msg.Role == RoleUser {
		if title := deriveTitle(msg.Content, s.titleLen); title != "" {
			sess.Title = title
		}
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = latest(sess.UpdatedAt, msg.Timestamp, now)

	if s.order == OrderUpdated && i > 0 {
		moved := *sess
		copy(s.sessions[1:i+1], s.sessions[:i])
		s.sessions[0] = moved
	}

	s.writeThrough(ctx)
	return nil
}

// history returns up to limit of the session's messages that can be replayed
// as context, oldest first. Fallback replies are skipped.
func (s *Store) history(sessionID string, limit int) ([]Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(sessionID)
	if i < 0 {
		return nil, false
	}
	var out []Message
	msgs := s.sessions[i].Messages
	for j := len(msgs) - 1; j >= 0 && len(out) < limit; j-- {
		if msgs[j].IsFallback() {
			continue
		}
		out = append(out, msgs[j])
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out, true
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

func deriveTitle(content string, limit int) string {
	if utf8.RuneCountInString(content) <= limit {
		return content
	}
	return string([]rune(content)[:limit]) + titleEllipsis
}

func latest(ts ...time.Time) time.Time {
	var out time.Time
	for _, t := range ts {
		if t.After(out) {
			out = t
		}
	}
	return out
}
