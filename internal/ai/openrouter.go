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

type OpenRouterProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	SiteURL string
	AppName string
	Client  *http.Client
}

type openRouterMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterChatReq struct {
	Model       string          `json:"model"`
	Messages    []openRouterMsg `json:"messages"`
	Stream      bool            `json:"stream"`
	Temperature *float32        `json:"temperature,omitempty"`
}

type openRouterErr struct {
	Message string `json:"message"`
}

type openRouterChatResp struct {
	Choices []struct {
		Message openRouterMsg `json:"message"`
	} `json:"choices"`
	Error *openRouterErr `json:"error,omitempty"`
}

type openRouterStreamResp struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *openRouterErr `json:"error,omitempty"`
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		SiteURL: siteURL,
		AppName: appName,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (p *OpenRouterProvider) newRequest(ctx context.Context, req Request, stream bool) (*http.Request, error) {
	if p.Client == nil {
		return nil, errors.New("openrouter: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, errors.New("openrouter: api key is required")
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		return nil, errors.New("openrouter: model is required")
	}

	msgs := withSystem(req)
	body := openRouterChatReq{
		Model:       model,
		Stream:      stream,
		Temperature: req.Temperature,
		Messages:    make([]openRouterMsg, 0, len(msgs)),
	}
	for _, m := range msgs {
		body.Messages = append(body.Messages, openRouterMsg{Role: m.Role, Content: m.Content})
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Authorization", "Bearer "+p.APIKey)
	if p.SiteURL != "" {
		hreq.Header.Set("HTTP-Referer", p.SiteURL)
	}
	if p.AppName != "" {
		hreq.Header.Set("X-Title", p.AppName)
	}
	return hreq, nil
}

func (p *OpenRouterProvider) Generate(ctx context.Context, req Request) (Reply, error) {
	hreq, err := p.newRequest(ctx, req, false)
	if err != nil {
		return Reply{}, err
	}
	resp, err := doRequest(p.Client, "openrouter", hreq)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()

	var decoded openRouterChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Reply{}, err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return Reply{}, errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return Reply{}, ErrEmptyReply
	}
	return Reply{Text: decoded.Choices[0].Message.Content}, nil
}

// GenerateStream reads the SSE stream of chat completion deltas.
func (p *OpenRouterProvider) GenerateStream(ctx context.Context, req Request, onChunk func(string)) (Reply, error) {
	hreq, err := p.newRequest(ctx, req, true)
	if err != nil {
		return Reply{}, err
	}
	resp, err := doRequest(streamingClient(p.Client), "openrouter", hreq)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 2*1024*1024)

	var b strings.Builder
scan:
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break scan
		}
		var decoded openRouterStreamResp
		if err := json.Unmarshal([]byte(data), &decoded); err != nil {
			return Reply{}, err
		}
		if decoded.Error != nil && decoded.Error.Message != "" {
			return Reply{}, errors.New(decoded.Error.Message)
		}
		if len(decoded.Choices) == 0 {
			continue
		}
		if delta := decoded.Choices[0].Delta.Content; delta != "" {
			b.WriteString(delta)
			if onChunk != nil {
				onChunk(delta)
			}
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
