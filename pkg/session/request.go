package session

import "github.com/papercomputeco/parley/pkg/conversation"

// CompletionsPath is appended to the configured endpoint for streaming requests.
const CompletionsPath = "/chat/completions"

// completionRequest is the body of a streaming chat completion request.
type completionRequest struct {
	Model    string                 `json:"model"`
	Stream   bool                   `json:"stream"`
	Messages []conversation.Message `json:"messages"`
}
