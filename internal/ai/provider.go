// Package ai is the generation collaborator: text in, text (plus optional
// grounding sources) out.
package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyReply is returned when a provider answers with no text.
var ErrEmptyReply = errors.New("ai: empty reply")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one generation call. Messages are oldest first and end with the
// user's prompt.
type Request struct {
	SystemInstruction string
	Messages          []Message
	// Grounding asks the provider to augment the answer with search results
	// and return their citations. Providers without search ignore it.
	Grounding   bool
	Temperature *float32
}

type Source struct {
	URI   string
	Title string
}

type Reply struct {
	Text    string
	Sources []Source
}

type Provider interface {
	Generate(ctx context.Context, req Request) (Reply, error)
}

// StreamProvider is an optional interface. onChunk receives text deltas in
// order; the returned Reply carries the full text.
type StreamProvider interface {
	GenerateStream(ctx context.Context, req Request, onChunk func(string)) (Reply, error)
}

// StatusError captures non-2xx upstream responses.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Float32 returns a pointer to v.
func Float32(v float32) *float32 { return &v }

func withSystem(req Request) []Message {
	out := make([]Message, 0, len(req.Messages)+1)
	if req.SystemInstruction != "" {
		out = append(out, Message{Role: RoleSystem, Content: req.SystemInstruction})
	}
	return append(out, req.Messages...)
}

// doRequest sends hreq and turns non-2xx answers into *StatusError.
func doRequest(client *http.Client, provider string, hreq *http.Request) (*http.Response, error) {
	resp, err := client.Do(hreq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		_ = resp.Body.Close()
		return nil, &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

// streamingClient drops the global timeout; ctx controls a stream's lifetime.
func streamingClient(c *http.Client) *http.Client {
	cp := *c
	cp.Timeout = 0
	return &cp
}
