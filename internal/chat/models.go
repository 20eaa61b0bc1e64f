package chat

import (
	"time"

	"github.com/suPer8Hu/research-chat/internal/research"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is immutable once appended to a session.
type Message struct {
	ID        string                     `json:"id"`
	Role      Role                       `json:"role"`
	Content   string                     `json:"content"`
	Timestamp time.Time                  `json:"timestamp"`
	Parsed    *research.AcademicResponse `json:"parsedResponse,omitempty"`
}

// IsFallback reports whether m is an assistant reply that carries no parsed
// record, i.e. the apology appended after a failed generation.
func (m Message) IsFallback() bool {
	return m.Role == RoleAssistant && m.Parsed == nil
}

func (m Message) clone() Message {
	if m.Parsed != nil {
		p := *m.Parsed
		if p.Sources != nil {
			p.Sources = append([]research.Source(nil), p.Sources...)
		}
		m.Parsed = &p
	}
	return m
}

type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s Session) clone() Session {
	msgs := make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		msgs[i] = m.clone()
	}
	s.Messages = msgs
	return s
}
