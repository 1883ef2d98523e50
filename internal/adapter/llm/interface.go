// Package llm provides the remote completion, image generation and file
// extraction calls the orchestrator depends on.
package llm

import (
	"context"
	"encoding/json"
)

// InvokeRequest is one completion call.
type InvokeRequest struct {
	Prompt string
	// Model overrides the client's default model.
	Model string
	// ResponseSchema, when set, asks for a JSON object matching the schema.
	ResponseSchema map[string]interface{}
	// AllowInternetContext lets the provider ground the answer with web search.
	AllowInternetContext bool
	// FileURLs are attached to the prompt as content parts.
	FileURLs []string
}

// InvokeResult is the outcome of a completion call.
type InvokeResult struct {
	Text  string
	Usage *Usage
}

// JSON returns the text as raw JSON, stripping a surrounding code fence if present.
func (r *InvokeResult) JSON() json.RawMessage {
	return json.RawMessage(StripCodeFence(r.Text))
}

// ImageResult references a generated image.
type ImageResult struct {
	URL string `json:"url"`
}

// Extraction statuses.
const (
	ExtractStatusSuccess = "success"
	ExtractStatusError   = "error"
)

// ExtractResult is the outcome of extracting structured data from a file.
type ExtractResult struct {
	Status  string          `json:"status"`
	Output  json.RawMessage `json:"output,omitempty"`
	Details string          `json:"details,omitempty"`
}

// LLMClient defines the remote model operations.
type LLMClient interface {
	// Invoke sends one prompt and returns the completion text.
	Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResult, error)

	// GenerateImage creates an image from a description.
	GenerateImage(ctx context.Context, prompt string) (*ImageResult, error)

	// ExtractFileContent pulls structured data out of a file. Failures are
	// reported through ExtractResult.Status rather than the error.
	ExtractFileContent(ctx context.Context, fileURL string, schema map[string]interface{}) (*ExtractResult, error)
}

// Ensure Client implements LLMClient interface.
var _ LLMClient = (*Client)(nil)
