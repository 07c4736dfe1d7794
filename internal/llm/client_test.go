package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", "", srv.URL+"/")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestNewClient(t *testing.T) {
	c := NewClient("key", "", "")
	assert.Equal(t, DefaultModel, c.Model())
	assert.Equal(t, "https://api.openai.com/v1/responses", c.endpoint)
	assert.NotNil(t, c.httpClient)

	c = NewClient("key", "gpt-4.1-mini", "http://localhost:9999/")
	assert.Equal(t, "gpt-4.1-mini", c.Model())
	assert.Equal(t, "http://localhost:9999/v1/responses", c.endpoint)
}

func TestGenerate(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/responses" {
			http.Error(w, "unexpected route", http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			http.Error(w, "bad key", http.StatusUnauthorized)
			return
		}

		var req struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		writeJSON(w, ResponsesResponse{
			ID: "resp_1",
			Output: []OutputItem{
				{Type: "reasoning"},
				{Type: "message", Role: "assistant", Content: []OutputContent{
					{Type: "output_text", Text: req.Model + ": "},
					{Type: "output_text", Text: "echo " + req.Input},
				}},
			},
		})
	})

	text, err := c.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "gpt-5.1: echo hello", text)
}

func TestGeneratePrefersOutputText(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, ResponsesResponse{
			OutputText: "aggregated",
			Output: []OutputItem{{Type: "message", Content: []OutputContent{
				{Type: "output_text", Text: "ignored"},
			}}},
		})
	})

	text, err := c.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "aggregated", text)
}

func TestChatSendsMessageList(t *testing.T) {
	var got []Message
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []Message `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got = req.Input
		writeJSON(w, ResponsesResponse{OutputText: "reply"})
	})

	msgs := []Message{
		{Role: RoleSystem, Content: "be nice"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "help me"},
	}
	text, err := c.Chat(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, "reply", text)
	assert.Equal(t, msgs, got)
}

func TestChatRequiresMessages(t *testing.T) {
	c := NewClient("key", "", "http://127.0.0.1:1")
	_, err := c.Chat(context.Background(), nil)
	assert.Error(t, err)
}

func TestNon200IncludesStatusAndBody(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Incorrect API key provided"}}`, http.StatusUnauthorized)
	})

	_, err := c.Generate(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Incorrect API key provided")
}

func TestEmbeddedAPIError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, ResponsesResponse{Status: "failed", Error: &APIError{Message: "model overloaded"}})
	})

	_, err := c.Generate(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestEmptyOutput(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, ResponsesResponse{Output: []OutputItem{{Type: "reasoning"}}})
	})

	_, err := c.Generate(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text content")
}

func TestContextDeadline(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		writeJSON(w, ResponsesResponse{OutputText: "too late"})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Generate(ctx, "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```\n", `{"a":1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\":1}\n```  ", `{"a":1}`},
		{"unterminated", "```json\n{\"a\":1}", `{"a":1}`},
		{"fence only", "```", "```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}
