package llm

import "context"

// Generator is the text-generation collaborator. Implementations must be
// safe for concurrent use; the services share one instance across requests.
type Generator interface {
	// Generate sends a single prompt and returns the model's text output.
	Generate(ctx context.Context, prompt string) (string, error)

	// Chat sends an ordered message list (an optional leading system
	// message, then alternating user/assistant turns) and returns the reply.
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Message roles understood by the Responses API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a message in the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponsesRequest represents a request to the Responses API.
// Input is either a plain string or a []Message.
type ResponsesRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

// ResponsesResponse represents a response from the Responses API.
type ResponsesResponse struct {
	ID         string       `json:"id"`
	Status     string       `json:"status"`
	OutputText string       `json:"output_text,omitempty"`
	Output     []OutputItem `json:"output"`
	Error      *APIError    `json:"error,omitempty"`
}

// OutputItem is one entry of the response output list. Only "message"
// items carry text; reasoning and tool items are skipped.
type OutputItem struct {
	Type    string          `json:"type"`
	Role    string          `json:"role,omitempty"`
	Content []OutputContent `json:"content,omitempty"`
}

// OutputContent represents a content block in an output message.
type OutputContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// APIError is the error object the API embeds in failed responses.
type APIError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
