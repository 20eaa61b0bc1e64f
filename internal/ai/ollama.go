package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type OllamaProvider struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3:latest"
	}
	return &OllamaProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature *float32 `json:"temperature,omitempty"`
}

type ollamaChatReq struct {
	Model    string         `json:"model"`
	Messages []ollamaMsg    `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaChatResp struct {
	Message ollamaMsg `json:"message"`
	Done    bool      `json:"done"`
	Error   string    `json:"error,omitempty"`
}

func (p *OllamaProvider) newRequest(ctx context.Context, req Request, stream bool) (*http.Request, error) {
	if p.Client == nil {
		return nil, errors.New("ollama: http client is nil")
	}

	msgs := withSystem(req)
	body := ollamaChatReq{
		Model:    p.Model,
		Stream:   stream,
		Messages: make([]ollamaMsg, 0, len(msgs)),
	}
	for _, m := range msgs {
		body.Messages = append(body.Messages, ollamaMsg{Role: m.Role, Content: m.Content})
	}
	if req.Temperature != nil {
		body.Options = &ollamaOptions{Temperature: req.Temperature}
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/chat", p.BaseURL)
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	return hreq, nil
}

func (p *OllamaProvider) Generate(ctx context.Context, req Request) (Reply, error) {
	hreq, err := p.newRequest(ctx, req, false)
	if err != nil {
		return Reply{}, err
	}
	resp, err := doRequest(p.Client, "ollama", hreq)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()

	var decoded ollamaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Reply{}, err
	}
	if decoded.Error != "" {
		return Reply{}, errors.New(decoded.Error)
	}
	if strings.TrimSpace(decoded.Message.Content) == "" {
		return Reply{}, ErrEmptyReply
	}
	return Reply{Text: decoded.Message.Content}, nil
}

// GenerateStream reads Ollama's newline-delimited JSON stream.
func (p *OllamaProvider) GenerateStream(ctx context.Context, req Request, onChunk func(string)) (Reply, error) {
	hreq, err := p.newRequest(ctx, req, true)
	if err != nil {
		return Reply{}, err
	}

	resp, err := doRequest(streamingClient(p.Client), "ollama", hreq)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	// Increase scanner buffer for long JSON lines.
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 2*1024*1024)

	var b strings.Builder
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var decoded ollamaChatResp
		if err := json.Unmarshal(line, &decoded); err != nil {
			return Reply{}, err
		}
		if decoded.Error != "" {
			return Reply{}, errors.New(decoded.Error)
		}

		if decoded.Message.Content != "" {
			b.WriteString(decoded.Message.Content)
			if onChunk != nil {
				onChunk(decoded.Message.Content)
			}
		}

		if decoded.Done {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return Reply{}, err
	}

	if strings.TrimSpace(b.String()) == "" {
		return Reply{}, ErrEmptyReply
	}
	return Reply{Text: b.String()}, nil
}
