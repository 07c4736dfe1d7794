// Package llm is the client for the hosted text-generation API and the
// prompts the services send to it.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultBaseURL is the OpenAI API base URL.
	DefaultBaseURL = "https://api.openai.com"
	// DefaultModel is the model to use when none is configured.
	DefaultModel = "gpt-5.1"

	responsesPath = "/v1/responses"
)

var _ Generator = (*Client)(nil)

// Client represents an OpenAI Responses API client.
type Client struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a new Responses API client. Empty model and baseURL
// fall back to DefaultModel and DefaultBaseURL.
func NewClient(apiKey, model, baseURL string) (client *Client) {
	if model == "" {
		model = DefaultModel
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client = &Client{
		apiKey:   apiKey,
		model:    model,
		endpoint: strings.TrimRight(baseURL, "/") + responsesPath,
		httpClient: &http.Client{
			// upper bound only, callers set tighter deadlines via ctx
			Timeout: 120 * time.Second,
		},
	}
	return client
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Generate sends a single prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (text string, err error) {
	text, err = c.sendRequest(ctx, prompt)
	if err != nil {
		err = errors.Wrap(err, "generate request failed")
		return text, err
	}
	return text, err
}

// Chat sends a conversation.
func (c *Client) Chat(ctx context.Context, messages []Message) (text string, err error) {
	if len(messages) == 0 {
		err = errors.New("chat requires at least one message")
		return text, err
	}

	text, err = c.sendRequest(ctx, messages)
	if err != nil {
		err = errors.Wrap(err, "chat request failed")
		return text, err
	}
	return text, err
}

// sendRequest posts input to the Responses API and extracts the text.
func (c *Client) sendRequest(ctx context.Context, input any) (responseText string, err error) {
	var reqBody []byte
	reqBody, err = json.Marshal(ResponsesRequest{Model: c.model, Input: input})
	if err != nil {
		err = errors.Wrap(err, "failed to marshal request")
		return responseText, err
	}

	var httpReq *http.Request
	httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		err = errors.Wrap(err, "failed to create HTTP request")
		return responseText, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	var resp *http.Response
	resp, err = c.httpClient.Do(httpReq)
	if err != nil {
		err = errors.Wrap(err, "HTTP request failed")
		return responseText, err
	}
	defer resp.Body.Close()

	var respBody []byte
	respBody, err = io.ReadAll(resp.Body)
	if err != nil {
		err = errors.Wrap(err, "failed to read response body")
		return responseText, err
	}

	if resp.StatusCode != http.StatusOK {
		err = errors.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
		return responseText, err
	}

	var parsed ResponsesResponse
	err = json.Unmarshal(respBody, &parsed)
	if err != nil {
		err = errors.Wrapf(err, "failed to parse response: %s", string(respBody))
		return responseText, err
	}

	if parsed.Error != nil {
		err = errors.Errorf("API returned error: %s", parsed.Error.Message)
		return responseText, err
	}

	responseText = outputText(parsed)
	if responseText == "" {
		err = errors.New("no text content in response")
		return responseText, err
	}

	return responseText, err
}

// outputText prefers the aggregated output_text field and otherwise joins
// every text block of every message item, in order.
func outputText(r ResponsesResponse) string {
	if r.OutputText != "" {
		return r.OutputText
	}

	var b strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" || c.Type == "text" {
				b.WriteString(c.Text)
			}
		}
	}
	return b.String()
}

// StripCodeFences removes a surrounding markdown code fence (``` or
// ```json) from model output. Text without a fence is returned trimmed.
func StripCodeFences(text string) (cleaned string) {
	cleaned = strings.TrimSpace(text)

	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}

	// drop the opening fence line, including any language tag
	nl := strings.IndexByte(cleaned, '\n')
	if nl < 0 {
		return cleaned
	}
	cleaned = cleaned[nl+1:]

	cleaned = strings.TrimRight(cleaned, " \r\n")
	cleaned = strings.TrimSuffix(cleaned, "```")

	return strings.TrimRight(cleaned, " \r\n")
}
