package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/mbd888/saathi/internal/ports"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonBody(v any) io.ReadCloser {
	b, _ := json.Marshal(v)
	return io.NopCloser(bytes.NewReader(b))
}

func TestNew_DefaultsModel(t *testing.T) {
	c := New("key", "", nil)
	if c.model != "llama-3.1-8b-instant" {
		t.Errorf("expected default model, got %s", c.model)
	}
}

func TestComplete_Success(t *testing.T) {
	c := New("test-key", "test-model", nil)
	c.httpClient.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected bearer auth header, got %s", req.Header.Get("Authorization"))
		}

		var sent chatRequest
		body, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(body, &sent)
		if sent.Model != "test-model" {
			t.Errorf("expected model test-model, got %s", sent.Model)
		}

		resp := chatResponse{}
		resp.Choices = []struct {
			Message      chatMessage `json:"message"`
			FinishReason string      `json:"finish_reason"`
		}{
			{Message: chatMessage{Role: "assistant", Content: "hello borrower"}, FinishReason: "stop"},
		}
		resp.Usage.PromptTokens = 10
		resp.Usage.CompletionTokens = 4

		return &http.Response{StatusCode: http.StatusOK, Body: jsonBody(resp)}, nil
	})

	out, err := c.Complete(context.Background(), ports.CompletionRequest{
		Messages: []ports.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out.Content != "hello borrower" {
		t.Errorf("expected content passthrough, got %s", out.Content)
	}
	if out.PromptTokens != 10 || out.OutputTokens != 4 {
		t.Errorf("expected usage passthrough, got %+v", out)
	}
}

func TestComplete_NonOKStatus(t *testing.T) {
	c := New("test-key", "", nil)
	c.httpClient.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusTooManyRequests, Body: io.NopCloser(bytes.NewReader([]byte(`{"error":"rate limited"}`)))}, nil
	})

	_, err := c.Complete(context.Background(), ports.CompletionRequest{})
	if err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}

func TestComplete_NoChoices(t *testing.T) {
	c := New("test-key", "", nil)
	c.httpClient.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: jsonBody(chatResponse{})}, nil
	})

	_, err := c.Complete(context.Background(), ports.CompletionRequest{})
	if err == nil {
		t.Fatal("expected an error when groq returns no choices")
	}
}
