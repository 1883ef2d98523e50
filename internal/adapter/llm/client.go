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

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// Client talks to an OpenAI-compatible endpoint (LiteLLM, OpenAI, vLLM...).
type Client struct {
	baseURL      string
	apiKey       string
	defaultModel string
	imageModel   string
	httpClient   *http.Client
}

// Options configures a Client.
type Options struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	ImageModel   string
	Timeout      time.Duration
}

// NewClient creates a new client.
func NewClient(opts Options) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:       opts.APIKey,
		defaultModel: opts.DefaultModel,
		imageModel:   opts.ImageModel,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

// Invoke sends a single-prompt chat completion.
func (c *Client) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResult, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	msg := ChatMessage{Role: "user", Content: req.Prompt}
	if len(req.FileURLs) > 0 {
		msg.Parts = append(msg.Parts, ContentPart{Type: "text", Text: req.Prompt})
		for _, u := range req.FileURLs {
			msg.Parts = append(msg.Parts, ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: u}})
		}
	}

	chatReq := &ChatCompletionRequest{
		Model:    model,
		Messages: []ChatMessage{msg},
	}
	if req.ResponseSchema != nil {
		chatReq.ResponseFormat = map[string]interface{}{
			"type": "json_schema",
			"json_schema": map[string]interface{}{
				"name":   "response",
				"schema": req.ResponseSchema,
			},
		}
	}
	if req.AllowInternetContext {
		chatReq.WebSearchOptions = map[string]interface{}{}
	}

	var resp ChatCompletionResponse
	if err := c.post(ctx, "/v1/chat/completions", chatReq, &resp); err != nil {
		return nil, classify("completion", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return nil, domain.NewRemoteCallError("completion", errors.New("response has no choices"))
	}
	return &InvokeResult{Text: resp.Choices[0].Message.Content, Usage: resp.Usage}, nil
}

// GenerateImage calls the image generation endpoint.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (*ImageResult, error) {
	var resp ImageGenerationResponse
	err := c.post(ctx, "/v1/images/generations", &ImageGenerationRequest{
		Model:  c.imageModel,
		Prompt: prompt,
		N:      1,
		Size:   "1024x1024",
	}, &resp)
	if err != nil {
		return nil, classify("image generation", err)
	}
	if len(resp.Data) == 0 {
		return nil, domain.NewRemoteCallError("image generation", errors.New("no image returned"))
	}
	if resp.Data[0].URL != "" {
		return &ImageResult{URL: resp.Data[0].URL}, nil
	}
	if resp.Data[0].B64JSON != "" {
		return &ImageResult{URL: "data:image/png;base64," + resp.Data[0].B64JSON}, nil
	}
	return nil, domain.NewRemoteCallError("image generation", errors.New("image has neither url nor data"))
}

// ExtractFileContent asks the model to read a file and answer with the schema.
func (c *Client) ExtractFileContent(ctx context.Context, fileURL string, schema map[string]interface{}) (*ExtractResult, error) {
	return extractWith(ctx, c, fileURL, schema)
}

// extractWith implements file extraction on top of any client's Invoke.
func extractWith(ctx context.Context, client LLMClient, fileURL string, schema map[string]interface{}) (*ExtractResult, error) {
	res, err := client.Invoke(ctx, &InvokeRequest{
		Prompt:         "Extract the content of the attached file and answer with JSON matching the requested schema.",
		ResponseSchema: schema,
		FileURLs:       []string{fileURL},
	})
	if err != nil {
		return &ExtractResult{Status: ExtractStatusError, Details: err.Error()}, nil
	}
	out := res.JSON()
	if !json.Valid(out) {
		return &ExtractResult{Status: ExtractStatusError, Details: "extraction returned invalid JSON"}, nil
	}
	return &ExtractResult{Status: ExtractStatusSuccess, Output: out}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return fmt.Errorf("LLM API error [%d]: %s (type: %s)", resp.StatusCode, errResp.Error.Message, errResp.Error.Type)
		}
		return fmt.Errorf("LLM API error [%d]: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// setHeaders sets common request headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// classify maps transport failures onto the domain error kinds.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return domain.NewTimedOutError(op, err)
	}
	return domain.NewRemoteCallError(op, err)
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// StripCodeFence removes a leading ```json / ``` fence and the trailing fence.
func StripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
