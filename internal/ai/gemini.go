package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-3-pro-preview"

// geminiModels is the part of *genai.Models the provider calls.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// GeminiProvider calls the Gemini API, optionally with Google Search grounding.
type GeminiProvider struct {
	models geminiModels
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newGeminiProvider(client.Models, model), nil
}

func newGeminiProvider(models geminiModels, model string) *GeminiProvider {
	if strings.TrimSpace(model) == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{models: models, model: model}
}

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (Reply, error) {
	contents, config := geminiRequest(req)
	resp, err := p.models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return Reply{}, fmt.Errorf("gemini: generate: %w", err)
	}
	reply := Reply{Text: resp.Text(), Sources: groundingSources(nil, resp)}
	if strings.TrimSpace(reply.Text) == "" {
		return Reply{}, ErrEmptyReply
	}
	return reply, nil
}

func (p *GeminiProvider) GenerateStream(ctx context.Context, req Request, onChunk func(string)) (Reply, error) {
	contents, config := geminiRequest(req)

	var (
		b       strings.Builder
		sources []Source
	)
	for resp, err := range p.models.GenerateContentStream(ctx, p.model, contents, config) {
		if err != nil {
			return Reply{}, fmt.Errorf("gemini: stream: %w", err)
		}
		if chunk := resp.Text(); chunk != "" {
			b.WriteString(chunk)
			if onChunk != nil {
				onChunk(chunk)
			}
		}
		sources = groundingSources(sources, resp)
	}

	if strings.TrimSpace(b.String()) == "" {
		return Reply{}, ErrEmptyReply
	}
	return Reply{Text: b.String(), Sources: sources}, nil
}

func geminiRequest(req Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	config := &genai.GenerateContentConfig{Temperature: req.Temperature}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.Grounding {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return contents, config
}

// groundingSources appends the web citations of resp's first candidate to
// acc, skipping URIs already present.
func groundingSources(acc []Source, resp *genai.GenerateContentResponse) []Source {
	if resp == nil || len(resp.Candidates) == 0 {
		return acc
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return acc
	}
	seen := make(map[string]bool, len(acc))
	for _, s := range acc {
		seen[s.URI] = true
	}
	for _, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
			continue
		}
		seen[chunk.Web.URI] = true
		title := chunk.Web.Title
		if title == "" {
			title = chunk.Web.URI
		}
		acc = append(acc, Source{URI: chunk.Web.URI, Title: title})
	}
	return acc
}
