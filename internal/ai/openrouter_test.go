package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenRouterGenerate(t *testing.T) {
	var got openRouterChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.Equal(t, "https://example.test", r.Header.Get("HTTP-Referer"))
		require.Equal(t, "research-chat", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"answer"}}]}`)
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "sk-test", "openai/gpt-4o-mini", "https://example.test", "research-chat")
	reply, err := p.Generate(context.Background(), Request{
		Messages: []Message{
			{Role: RoleUser, Content: "q1"},
			{Role: RoleAssistant, Content: "a1"},
			{Role: RoleUser, Content: "q2"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "answer", reply.Text)
	require.Equal(t, "openai/gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 3)
	require.Nil(t, got.Temperature)
}

func TestOpenRouterGenerate_Validation(t *testing.T) {
	_, err := NewOpenRouterProvider("", "", "m", "", "").Generate(context.Background(), Request{})
	require.ErrorContains(t, err, "api key is required")

	_, err = NewOpenRouterProvider("", "k", " ", "", "").Generate(context.Background(), Request{})
	require.ErrorContains(t, err, "model is required")
}

func TestOpenRouterGenerate_BodyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer srv.Close()

	_, err := NewOpenRouterProvider(srv.URL, "k", "m", "", "").Generate(context.Background(), Request{})
	require.EqualError(t, err, "rate limited")
}

func TestOpenRouterGenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, ": keep-alive\n\n")
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		_, _ = fmt.Fprint(w, "data: {\"choices\":[]}\n\n")
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	var chunks []string
	reply, err := NewOpenRouterProvider(srv.URL, "k", "m", "", "").GenerateStream(context.Background(), Request{}, func(s string) {
		chunks = append(chunks, s)
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Hel", "lo"}, chunks)
	require.Equal(t, "Hello", reply.Text)
}

func TestOpenRouterGenerateStream_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	_, err := NewOpenRouterProvider(srv.URL, "k", "m", "", "").GenerateStream(context.Background(), Request{}, nil)
	require.ErrorIs(t, err, ErrEmptyReply)
}
