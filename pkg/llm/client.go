package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jqb69/darkseek/pkg/clients"
	"github.com/jqb69/darkseek/pkg/search"
)

var (
	// ErrUnknownModel is returned for a model name absent from the registry.
	ErrUnknownModel = errors.New("llm: unknown model")
	// ErrMissingToken is returned when no API token is configured.
	ErrMissingToken = errors.New("llm: api token is missing")
	// ErrMissingEndpoint is returned when a model has no endpoint URL.
	ErrMissingEndpoint = errors.New("llm: endpoint url is not configured")
	// ErrStreamInterrupted is returned by Stream.Recv when the connection
	// drops after at least one token was delivered. The tokens received so
	// far remain available via Stream.Partial.
	ErrStreamInterrupted = errors.New("llm: stream interrupted")
)

// Client talks to hosted text-generation-inference endpoints. Streaming
// connections carry no overall timeout; generation length is bounded by
// the endpoint, not the client.
type Client struct {
	cfg          Config
	streamClient *http.Client
	answerClient *http.Client
}

// NewClient creates a model client from configuration.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:          cfg,
		streamClient: &http.Client{},
		answerClient: &http.Client{Timeout: 180 * time.Second},
	}
}

// DefaultModel returns the configured default model name.
func (c *Client) DefaultModel() string { return c.cfg.DefaultModel }

// Models returns the configured model names.
func (c *Client) Models() []string { return c.cfg.ModelNames() }

// resolve maps a requested model name (empty = default) to its config.
// Configuration problems fail fast, before any network call.
func (c *Client) resolve(model string) (string, ModelConfig, error) {
	if model == "" {
		model = c.cfg.DefaultModel
	}
	mc, ok := c.cfg.Models[model]
	if !ok {
		return "", ModelConfig{}, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	if c.cfg.APIToken == "" {
		return "", ModelConfig{}, ErrMissingToken
	}
	if mc.EndpointURL == "" {
		return "", ModelConfig{}, fmt.Errorf("%w: model %s", ErrMissingEndpoint, model)
	}
	return model, mc, nil
}

type generateParameters struct {
	MaxNewTokens      int     `json:"max_new_tokens,omitempty"`
	Temperature       float64 `json:"temperature,omitempty"`
	RepetitionPenalty float64 `json:"repetition_penalty,omitempty"`
}

type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
}

func (c *Client) post(ctx context.Context, client *http.Client, url, prompt string, mc ModelConfig) (*http.Response, error) {
	payload, err := json.Marshal(generateRequest{
		Inputs: prompt,
		Parameters: generateParameters{
			MaxNewTokens:      mc.MaxNewTokens,
			Temperature:       mc.Temperature,
			RepetitionPenalty: mc.RepetitionPenalty,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

	resp, err := clients.DoWithRetry(ctx, client, req, clients.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("llm: request failed: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("llm: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// Stream opens a token stream for the query. The connection itself is
// retried on transient failure; individual tokens are not.
func (c *Client) Stream(ctx context.Context, query string, results []search.Result, model string) (Stream, string, error) {
	name, mc, err := c.resolve(model)
	if err != nil {
		return nil, "", err
	}
	prompt := BuildPrompt(query, results)

	resp, err := c.post(ctx, c.streamClient, strings.TrimRight(mc.EndpointURL, "/")+"/generate_stream", prompt, mc)
	if err != nil {
		return nil, "", err
	}
	return newTokenStream(resp), name, nil
}

type generateResponse struct {
	GeneratedText string `json:"generated_text"`
}

// Answer returns the full canonical response for the query without
// streaming.
func (c *Client) Answer(ctx context.Context, query string, results []search.Result, model string) (string, error) {
	_, mc, err := c.resolve(model)
	if err != nil {
		return "", err
	}
	prompt := BuildPrompt(query, results)

	resp, err := c.post(ctx, c.answerClient, strings.TrimRight(mc.EndpointURL, "/")+"/generate", prompt, mc)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	return strings.TrimSpace(decoded.GeneratedText), nil
}
