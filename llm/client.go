// Package llm talks to a running LM Studio server: completions, streamed
// completions, model listings and model resolution.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kmlawson/lmsp/errs"
	"github.com/kmlawson/lmsp/internal/logging"
	"github.com/kmlawson/lmsp/providers"
	"github.com/kmlawson/lmsp/sanitize"
)

const (
	// DefaultTimeout bounds a whole completion, streaming included.
	DefaultTimeout = 300 * time.Second
	// StatusTimeout bounds the server status check.
	StatusTimeout = 2 * time.Second
	// DefaultTemperature is sent when no temperature is configured.
	DefaultTemperature = 0.7

	maxErrorExcerpt = 200
)

// ModelDescriptor describes one model known to the server.
type ModelDescriptor = providers.ModelDescriptor

// Client issues requests to the LM Studio server. It holds no connection
// state between calls.
type Client struct {
	provider    providers.Provider
	baseURL     string
	client      *http.Client
	logger      logging.Logger
	counter     TokenCounter
	preferUsage bool
	temperature float64
	port        int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout sets the total time allowed for a request, including reading
// the streamed body.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ClientOption {
	return func(c *Client) {
		c.temperature = t
	}
}

// WithTokenCounter sets how completion tokens are counted. When preferUsage
// is true, counts reported by the server take precedence.
func WithTokenCounter(counter TokenCounter, preferUsage bool) ClientOption {
	return func(c *Client) {
		c.counter = counter
		c.preferUsage = preferUsage
	}
}

// WithBaseURL points the client at another server, e.g. a test server.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// NewClient creates a client for the server on localhost:port.
func NewClient(port int, opts ...ClientOption) *Client {
	c := &Client{
		client:      &http.Client{Timeout: DefaultTimeout},
		logger:      logging.Nop(),
		counter:     ChunkCounter{},
		preferUsage: true,
		temperature: DefaultTemperature,
		port:        port,
		baseURL:     providers.BaseURL(port),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.provider = providers.NewLMStudioProvider(c.baseURL, c.logger)
	return c
}

// Port returns the port the client was created for.
func (c *Client) Port() int {
	return c.port
}

func (c *Client) request(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeUnknown, "failed to create request", err)
	}
	for k, v := range c.provider.Headers() {
		req.Header.Set(k, v)
	}

	c.logger.Debug("Sending request", "method", method, "url", url, "bytes", len(body))
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(err, url)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorExcerpt))
		c.logger.Error("Unexpected status", "url", url, "status", resp.StatusCode)
		return nil, statusError(resp.StatusCode, sanitize.Terminal(string(bytes.TrimSpace(excerpt))))
	}
	return resp, nil
}

func (c *Client) completionRequest(model, prompt string) (*providers.Request, error) {
	if err := sanitize.ValidateModelName(model); err != nil {
		return nil, err
	}
	clean, err := sanitize.ValidatePrompt(prompt)
	if err != nil {
		return nil, err
	}
	return &providers.Request{Model: model, Prompt: clean, Temperature: c.temperature}, nil
}

// Complete sends prompt to model and waits for the whole reply.
func (c *Client) Complete(ctx context.Context, model, prompt string) (*Result, error) {
	req, err := c.completionRequest(model, prompt)
	if err != nil {
		return nil, err
	}
	body, err := c.provider.PrepareRequest(req)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeUnknown, "failed to prepare request", err)
	}

	started := time.Now()
	resp, err := c.request(ctx, http.MethodPost, c.provider.Endpoint(), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := sanitize.ReadLimited(resp.Body, sanitize.MaxResponseBytes)
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			return nil, malformed("completion response rejected", err)
		}
		return nil, transportError(err, c.provider.Endpoint())
	}
	parsed, err := c.provider.ParseResponse(data)
	if err != nil {
		return nil, malformed("completion response rejected", err)
	}

	latency := time.Since(started)
	res := &Result{
		Text:              trimResult(parsed.Text),
		FirstTokenLatency: latency,
		Latency:           latency,
	}
	res.Tokens, res.FromUsage = c.countTokens(res.Text, 0, parsed.Usage)
	c.logger.Debug("Completion received", "model", model, "tokens", res.Tokens, "latency", latency)
	return res, nil
}

// Stream sends prompt to model and returns the reply as a TokenStream. The
// caller must Close the stream.
func (c *Client) Stream(ctx context.Context, model, prompt string) (TokenStream, error) {
	req, err := c.completionRequest(model, prompt)
	if err != nil {
		return nil, err
	}
	body, err := c.provider.PrepareStreamRequest(req)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeUnknown, "failed to prepare request", err)
	}

	started := time.Now()
	resp, err := c.request(ctx, http.MethodPost, c.provider.Endpoint(), body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Stream opened", "model", model, "content_type", resp.Header.Get("Content-Type"))
	return newSSEStream(resp.Body, c.provider, c.provider.Endpoint(), started), nil
}

// Models lists the chat-capable models the server knows, loaded or not.
func (c *Client) Models(ctx context.Context) ([]ModelDescriptor, error) {
	resp, err := c.request(ctx, http.MethodGet, c.provider.ModelsEndpoint(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := sanitize.ReadLimited(resp.Body, sanitize.MaxResponseBytes)
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			return nil, malformed("model listing rejected", err)
		}
		return nil, transportError(err, c.provider.ModelsEndpoint())
	}
	models, err := c.provider.ParseModels(data)
	if err != nil {
		return nil, malformed("model listing rejected", err)
	}
	return models, nil
}

// LoadedModels returns the loaded models in server order.
func (c *Client) LoadedModels(ctx context.Context) ([]ModelDescriptor, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return nil, err
	}
	loaded := make([]ModelDescriptor, 0, len(models))
	for _, m := range models {
		if m.Loaded {
			loaded = append(loaded, m)
		}
	}
	c.logger.Debug("Loaded models", "count", len(loaded), "known", len(models))
	return loaded, nil
}

// ServerStatus reports whether the server answers on its port.
type ServerStatus struct {
	Running bool
	Port    int
	// Detail explains why the server is not running.
	Detail string
}

// ServerStatus checks the server with a short timeout. It never fails; an
// unreachable server is reported through the returned status.
func (c *Client) ServerStatus(ctx context.Context) ServerStatus {
	ctx, cancel := context.WithTimeout(ctx, StatusTimeout)
	defer cancel()

	status := ServerStatus{Port: c.port}
	resp, err := c.request(ctx, http.MethodGet, c.provider.StatusEndpoint(), nil)
	if err != nil {
		c.logger.Debug("Server status check failed", "error", err)
		status.Detail = statusDetail(err)
		return status
	}
	resp.Body.Close()
	status.Running = true
	return status
}

func statusDetail(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return fmt.Sprint(err)
}
