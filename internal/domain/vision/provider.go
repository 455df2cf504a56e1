// Package vision talks to a vision-capable LLM for plant identification,
// health diagnosis and care guides. Gemini and OpenAI are reached through
// the OpenAI chat-completions API; Ollama through its native chat API.
package vision

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"fro-server/internal/domain/analysis"
	"fro-server/internal/domain/image"
	"fro-server/internal/platform/errors"
	"fro-server/internal/platform/logging"
	"fro-server/internal/platform/observability"
)

const (
	TypeGemini = "gemini"
	TypeOpenAI = "openai"
	TypeOllama = "ollama"

	defaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	defaultOllamaURL = "http://localhost:11434"
)

// Config selects the endpoint and model.
type Config struct {
	Type        string
	ModelName   string
	BaseURL     string
	APIKey      string
	Temperature float32
	MaxTokens   int
}

// Provider implements analysis.Identifier, analysis.HealthAnalyzer and
// analysis.CareAdvisor.
type Provider struct {
	cfg        Config
	client     *openai.Client
	httpClient *http.Client
	logger     *logging.Logger

	identifySchema *jsonschema.Definition
	healthSchema   *jsonschema.Definition
	careSchema     *jsonschema.Definition
}

var (
	_ analysis.Identifier     = (*Provider)(nil)
	_ analysis.HealthAnalyzer = (*Provider)(nil)
	_ analysis.CareAdvisor    = (*Provider)(nil)
)

// NewProvider validates cfg and prepares the client and response schemas.
func NewProvider(cfg Config, logger *logging.Logger) (*Provider, error) {
	const op = "vision.NewProvider"

	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	if cfg.ModelName == "" {
		return nil, errors.New(errors.KindConfig, op, "model name is required")
	}

	p := &Provider{cfg: cfg, logger: logger, httpClient: &http.Client{}}

	switch cfg.Type {
	case TypeGemini, TypeOpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New(errors.KindConfig, op, cfg.Type+" api key is required")
		}
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL == "" && cfg.Type == TypeGemini {
			cfg.BaseURL = defaultGeminiURL
		}
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		p.client = openai.NewClientWithConfig(clientConfig)
	case TypeOllama:
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultOllamaURL
		}
		cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	default:
		return nil, errors.New(errors.KindConfig, op, "unsupported vision type: "+cfg.Type)
	}
	p.cfg = cfg

	var err error
	if p.identifySchema, err = jsonschema.GenerateSchemaForType(analysis.Identification{}); err != nil {
		return nil, errors.Wrap(errors.KindConfig, op, "identification schema", err)
	}
	if p.healthSchema, err = jsonschema.GenerateSchemaForType(analysis.HealthAnalysis{}); err != nil {
		return nil, errors.Wrap(errors.KindConfig, op, "health schema", err)
	}
	if p.careSchema, err = jsonschema.GenerateSchemaForType(analysis.CareGuide{}); err != nil {
		return nil, errors.Wrap(errors.KindConfig, op, "care guide schema", err)
	}

	logger.InfoTag("VISION", "provider ready: type=%s model=%s", cfg.Type, cfg.ModelName)
	return p, nil
}

// Describe returns the provider type and model for status reporting.
func (p *Provider) Describe() (string, string) {
	return p.cfg.Type, p.cfg.ModelName
}

func (p *Provider) IdentifyPlant(ctx context.Context, payload *image.Payload) (analysis.Identification, error) {
	var out analysis.Identification
	if err := p.complete(ctx, "plant_identification", p.identifySchema, identifyPrompt, payload, &out); err != nil {
		return analysis.Identification{}, err
	}
	if !out.ConfidenceValid() {
		p.logger.WarnTag("VISION", "plant_identification reply rejected: confidence %v", out.Confidence)
		return analysis.Identification{}, errors.Wrap(errors.KindRemote, "vision.Provider.plant_identification",
			"malformed model output", fmt.Errorf("confidence %v outside [0,1]", out.Confidence))
	}
	return out, nil
}

func (p *Provider) AnalyzePlantHealth(ctx context.Context, payload *image.Payload, description string) (analysis.HealthAnalysis, error) {
	var out analysis.HealthAnalysis
	err := p.complete(ctx, "plant_health", p.healthSchema, healthPrompt(description), payload, &out)
	return out, err
}

func (p *Provider) GenerateCareTips(ctx context.Context, plantName, healthAnalysis string) (analysis.CareGuide, error) {
	var out analysis.CareGuide
	err := p.complete(ctx, "plant_care_guide", p.careSchema, careTipsPrompt(plantName, healthAnalysis), nil, &out)
	return out, err
}

// complete runs one structured call and decodes the reply into out after
// checking it against schema. payload may be nil for text-only prompts.
func (p *Provider) complete(ctx context.Context, name string, schema *jsonschema.Definition, prompt string, payload *image.Payload, out any) (err error) {
	op := "vision.Provider." + name
	ctx, end := observability.StartSpan(ctx, "vision", name)
	defer func() { end(err) }()

	started := time.Now()
	var content string
	if p.cfg.Type == TypeOllama {
		content, err = p.ollamaChat(ctx, schema, prompt, payload)
	} else {
		content, err = p.openaiChat(ctx, name, schema, prompt, payload)
	}
	if err != nil {
		p.logger.WarnTag("VISION", "%s call failed after %s: %v", name, time.Since(started), err)
		return errors.Wrap(errors.KindRemote, op, "vision call failed", err)
	}

	content = stripCodeFence(content)
	if err := jsonschema.VerifySchemaAndUnmarshal(*schema, []byte(content), out); err != nil {
		p.logger.WarnTag("VISION", "%s reply rejected: %v", name, err)
		return errors.Wrap(errors.KindRemote, op, "malformed model output", err)
	}

	p.logger.DebugTag("VISION", "%s answered in %s", name, time.Since(started))
	observability.RecordMetric(ctx, "vision.call_ms", float64(time.Since(started).Milliseconds()),
		map[string]string{"call": name, "type": p.cfg.Type})
	return nil
}

func (p *Provider) openaiChat(ctx context.Context, name string, schema *jsonschema.Definition, prompt string, payload *image.Payload) (string, error) {
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: prompt}}
	if !payload.Empty() {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: payload.DataURI(), Detail: openai.ImageURLDetailAuto},
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.cfg.ModelName,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, MultiContent: parts}},
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: schema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Format   *jsonschema.Definition `json:"format,omitempty"`
	Options  map[string]any         `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error,omitempty"`
}

func (p *Provider) ollamaChat(ctx context.Context, schema *jsonschema.Definition, prompt string, payload *image.Payload) (string, error) {
	msg := ollamaMessage{Role: openai.ChatMessageRoleUser, Content: prompt}
	if !payload.Empty() {
		// raw base64, no data: prefix
		msg.Images = []string{payload.Base64()}
	}
	body, err := sonic.Marshal(ollamaRequest{
		Model:    p.cfg.ModelName,
		Messages: []ollamaMessage{msg},
		Format:   schema,
		Options:  map[string]any{"temperature": p.cfg.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("encode ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read ollama response: %w", err)
	}
	var decoded ollamaResponse
	if err := sonic.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decode ollama response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || decoded.Error != "" {
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, decoded.Error)
	}
	return decoded.Message.Content, nil
}

// stripCodeFence removes a ```json fence some models wrap around JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
