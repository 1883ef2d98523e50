package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// MockClient is a scripted LLMClient for tests and offline runs.
//
// Responses are served from the script queue first, then from Handler, and
// finally from a default generator that lets every participant answer once
// before yielding.
type MockClient struct {
	mu      sync.Mutex
	script  []mockReply
	calls   []InvokeRequest
	images  int
	Handler func(ctx context.Context, req *InvokeRequest) (*InvokeResult, error)
	// ImageErr, when set, fails every GenerateImage call.
	ImageErr error
}

type mockReply struct {
	text string
	err  error
}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ensure MockClient implements LLMClient interface.
var _ LLMClient = (*MockClient)(nil)

// Enqueue appends canned replies served in order by Invoke.
func (m *MockClient) Enqueue(texts ...string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range texts {
		m.script = append(m.script, mockReply{text: t})
	}
	return m
}

// EnqueueError makes the next queued Invoke fail with err.
func (m *MockClient) EnqueueError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockReply{err: err})
	return m
}

// Calls returns a copy of every request Invoke received.
func (m *MockClient) Calls() []InvokeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]InvokeRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// Invoke returns the next scripted reply or a generated one.
func (m *MockClient) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("completion", err)
	}

	m.mu.Lock()
	m.calls = append(m.calls, *req)
	var next *mockReply
	if len(m.script) > 0 {
		r := m.script[0]
		m.script = m.script[1:]
		next = &r
	}
	handler := m.Handler
	m.mu.Unlock()

	if next != nil {
		if next.err != nil {
			return nil, next.err
		}
		return &InvokeResult{Text: next.text}, nil
	}
	if handler != nil {
		return handler(ctx, req)
	}
	return &InvokeResult{Text: generateMockResponse(req)}, nil
}

// GenerateImage returns a deterministic placeholder URL.
func (m *MockClient) GenerateImage(ctx context.Context, prompt string) (*ImageResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ImageErr != nil {
		return nil, m.ImageErr
	}
	m.images++
	return &ImageResult{URL: fmt.Sprintf("https://mock.local/images/%d.png", m.images)}, nil
}

// ExtractFileContent runs extraction through Invoke.
func (m *MockClient) ExtractFileContent(ctx context.Context, fileURL string, schema map[string]interface{}) (*ExtractResult, error) {
	return extractWith(ctx, m, fileURL, schema)
}

var turnCue = regexp.MustCompile(`Your turn, as (.+):\s*$`)

// generateMockResponse answers structured calls with an empty object and
// participant turns with a short echo, yielding once the speaker has already
// answered in the visible history.
func generateMockResponse(req *InvokeRequest) string {
	if req.ResponseSchema != nil {
		return "{}"
	}

	m := turnCue.FindStringSubmatch(req.Prompt)
	if m == nil {
		return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(req.Prompt, 100))
	}
	name := m[1]
	if strings.Contains(req.Prompt, "\n"+name+": [MOCK]") {
		return fmt.Sprintf("[MOCK] %s has nothing to add. [YIELD]", name)
	}
	return fmt.Sprintf("[MOCK] %s received the latest message.", name)
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
