package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kmlawson/lmsp/errs"
	"github.com/kmlawson/lmsp/internal/logging"
	"github.com/kmlawson/lmsp/sanitize"
)

// DefaultHost is where LM Studio listens.
const DefaultHost = "localhost"

// BaseURL returns the LM Studio base URL for port.
func BaseURL(port int) string {
	return fmt.Sprintf("http://%s:%d", DefaultHost, port)
}

// validate checks decoded responses before any field is used.
var validate = validator.New()

// LMStudioProvider speaks LM Studio's OpenAI-compatible chat API and its
// REST model listing.
type LMStudioProvider struct {
	baseURL string
	logger  logging.Logger
}

// NewLMStudioProvider creates a provider for the server at baseURL, e.g.
// "http://localhost:1234".
func NewLMStudioProvider(baseURL string, logger logging.Logger) *LMStudioProvider {
	if logger == nil {
		logger = logging.Nop()
	}
	return &LMStudioProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Name returns the provider's identifier.
func (p *LMStudioProvider) Name() string {
	return "lmstudio"
}

// Endpoint returns the chat completion URL.
func (p *LMStudioProvider) Endpoint() string {
	return p.baseURL + "/v1/chat/completions"
}

// ModelsEndpoint returns the REST listing that reports load state.
func (p *LMStudioProvider) ModelsEndpoint() string {
	return p.baseURL + "/api/v0/models"
}

// StatusEndpoint returns the URL requested by the server check.
func (p *LMStudioProvider) StatusEndpoint() string {
	return p.baseURL + "/v1/models"
}

// Headers returns the HTTP headers required for API requests.
func (p *LMStudioProvider) Headers() map[string]string {
	return map[string]string{
		"Content-Type": "application/json; charset=utf-8",
		"Accept":       "application/json, text/event-stream",
	}
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	Temperature   float64        `json:"temperature"`
	MaxTokens     int            `json:"max_tokens"`
	Stream        bool           `json:"stream"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

func (p *LMStudioProvider) prepare(req *Request, stream bool) ([]byte, error) {
	if req == nil || req.Model == "" {
		return nil, fmt.Errorf("request has no model")
	}
	body := chatRequest{
		Model:       req.Model,
		Messages:    []Message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		// -1 lets the server generate until the model stops.
		MaxTokens: -1,
		Stream:    stream,
	}
	if stream {
		body.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return json.Marshal(body)
}

// PrepareRequest creates the body of a non-streaming completion request.
func (p *LMStudioProvider) PrepareRequest(req *Request) ([]byte, error) {
	return p.prepare(req, false)
}

// PrepareStreamRequest creates the body of a streaming completion request.
func (p *LMStudioProvider) PrepareStreamRequest(req *Request) ([]byte, error) {
	return p.prepare(req, true)
}

type chatUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

func (u *chatUsage) toUsage() *Usage {
	if u == nil {
		return nil
	}
	return &Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}

type chatCompletion struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices" validate:"required,min=1"`
	Usage *chatUsage      `json:"usage"`
	Error json.RawMessage `json:"error"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatUsage      `json:"usage"`
	Error json.RawMessage `json:"error"`
}

// serverError extracts the message of an "error" member, which LM Studio
// sends either as a string or as {"message": ...}.
func serverError(raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil || obj.Message == "" {
			msg = string(raw)
		} else {
			msg = obj.Message
		}
	}
	return errs.Newf(errs.ErrorTypeMalformedResponse, "server error: %s", sanitize.Terminal(msg))
}

// ParseResponse extracts the generated text from a completion response.
// Oversized or overly nested bodies fail with the sanitize error types;
// anything else that does not fit is a MalformedResponseError.
func (p *LMStudioProvider) ParseResponse(body []byte) (*Response, error) {
	var resp chatCompletion
	if err := sanitize.DecodeJSON(body, &resp, sanitize.ResponseLimits); err != nil {
		return nil, err
	}
	if err := serverError(resp.Error); err != nil {
		return nil, err
	}
	if err := validate.Struct(&resp); err != nil {
		return nil, errs.New(errs.ErrorTypeMalformedResponse, "completion response has no choices", err)
	}

	choice := resp.Choices[0]
	p.logger.Debug("Completion parsed", "finish_reason", choice.FinishReason, "usage", resp.Usage != nil)
	return &Response{
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        resp.Usage.toUsage(),
	}, nil
}

// ParseStreamResponse parses the data of one stream event. Usage-only
// chunks yield an empty Text.
func (p *LMStudioProvider) ParseStreamResponse(chunk []byte) (*Response, error) {
	var resp chatChunk
	if err := sanitize.DecodeJSON(chunk, &resp, sanitize.ResponseLimits); err != nil {
		return nil, err
	}
	if err := serverError(resp.Error); err != nil {
		return nil, err
	}

	out := &Response{Usage: resp.Usage.toUsage()}
	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Delta.Content
		out.FinishReason = resp.Choices[0].FinishReason
	}
	return out, nil
}

type modelList struct {
	Data []struct {
		ID    string `json:"id" validate:"required"`
		Type  string `json:"type"`
		State string `json:"state"`
	} `json:"data" validate:"dive"`
}

// ParseModels parses the REST model listing. Embedding models are skipped
// since they cannot serve chat completions.
func (p *LMStudioProvider) ParseModels(body []byte) ([]ModelDescriptor, error) {
	var list modelList
	if err := sanitize.DecodeJSON(body, &list, sanitize.ResponseLimits); err != nil {
		return nil, err
	}
	if err := validate.Struct(&list); err != nil {
		return nil, errs.New(errs.ErrorTypeMalformedResponse, "model listing has entries without id", err)
	}

	models := make([]ModelDescriptor, 0, len(list.Data))
	for _, m := range list.Data {
		if m.Type == "embeddings" {
			continue
		}
		models = append(models, ModelDescriptor{
			ID:     m.ID,
			Type:   m.Type,
			Loaded: m.State == "loaded",
		})
	}
	return models, nil
}
