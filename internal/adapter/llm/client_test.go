package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

func TestClientInvoke(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Fatalf("unexpected auth header: %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL + "/", APIKey: "secret", DefaultModel: "gpt", Timeout: time.Second})
	res, err := client.Invoke(context.Background(), &InvokeRequest{
		Prompt:               "hello",
		ResponseSchema:       map[string]interface{}{"type": "object"},
		AllowInternetContext: true,
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Text != "hi" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
	if got["model"] != "gpt" {
		t.Fatalf("expected default model, got %v", got["model"])
	}
	if _, ok := got["response_format"]; !ok {
		t.Fatalf("expected response_format in request")
	}
	if _, ok := got["web_search_options"]; !ok {
		t.Fatalf("expected web_search_options in request")
	}
	msgs := got["messages"].([]interface{})
	if content := msgs[0].(map[string]interface{})["content"]; content != "hello" {
		t.Fatalf("expected plain content, got %v", content)
	}
}

func TestClientInvokeWithFiles(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		fmt.Fprint(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, DefaultModel: "gpt", Timeout: time.Second})
	if _, err := client.Invoke(context.Background(), &InvokeRequest{Prompt: "look", FileURLs: []string{"https://x/a.png"}}); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !strings.Contains(body, `"image_url":{"url":"https://x/a.png"}`) {
		t.Fatalf("expected image part, got %s", body)
	}
}

func TestClientInvokeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, Timeout: time.Second})
	_, err := client.Invoke(context.Background(), &InvokeRequest{Prompt: "hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrorKindRemoteCall) {
		t.Fatalf("expected remote call error, got %v", err)
	}
	if !strings.Contains(err.Error(), "LLM API error [400]: bad") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestClientInvokeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, Timeout: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Invoke(ctx, &InvokeRequest{Prompt: "hello"})
	if !domain.IsKind(err, domain.ErrorKindTimedOut) {
		t.Fatalf("expected timed out error, got %v", err)
	}
}

func TestClientGenerateImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"created":1,"data":[{"url":"https://img/1.png"}]}`)
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, ImageModel: "dall-e-3", Timeout: time.Second})
	img, err := client.GenerateImage(context.Background(), "a cat")
	if err != nil {
		t.Fatalf("GenerateImage failed: %v", err)
	}
	if img.URL != "https://img/1.png" {
		t.Fatalf("unexpected url: %s", img.URL)
	}
}

func TestClientExtractFileContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{\"choices\":[{\"index\":0,\"message\":{\"role\":\"assistant\",\"content\":\"```json\\n{\\\"summary\\\":\\\"s\\\"}\\n```\"}}]}")
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, Timeout: time.Second})
	res, err := client.ExtractFileContent(context.Background(), "https://x/a.pdf", map[string]interface{}{"type": "object"})
	if err != nil {
		t.Fatalf("ExtractFileContent failed: %v", err)
	}
	if res.Status != ExtractStatusSuccess || string(res.Output) != `{"summary":"s"}` {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestMockClientScriptAndDefaults(t *testing.T) {
	m := NewMockClient().Enqueue("first")
	m.EnqueueError(errors.New("boom"))

	res, err := m.Invoke(context.Background(), &InvokeRequest{Prompt: "x"})
	if err != nil || res.Text != "first" {
		t.Fatalf("unexpected scripted reply: %v %v", res, err)
	}
	if _, err := m.Invoke(context.Background(), &InvokeRequest{Prompt: "x"}); err == nil {
		t.Fatalf("expected scripted error")
	}

	res, _ = m.Invoke(context.Background(), &InvokeRequest{Prompt: "Human: hi\n\nYour turn, as Claude:"})
	if strings.Contains(res.Text, "[YIELD]") {
		t.Fatalf("first turn should not yield: %q", res.Text)
	}
	res, _ = m.Invoke(context.Background(), &InvokeRequest{Prompt: "Human: hi\nClaude: [MOCK] x\n\nYour turn, as Claude:"})
	if !strings.Contains(res.Text, "[YIELD]") {
		t.Fatalf("repeat turn should yield: %q", res.Text)
	}
	if len(m.Calls()) != 4 {
		t.Fatalf("expected 4 recorded calls, got %d", len(m.Calls()))
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":               "{\"a\":1}",
		"```json\n{\"a\":1}\n```": "{\"a\":1}",
		"```\n[1]\n```":           "[1]",
		"  plain text  ":          "plain text",
	}
	for in, want := range cases {
		if got := StripCodeFence(in); got != want {
			t.Fatalf("StripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}
