package provider

import "context"

// ModelClient is one chat-completion model endpoint. The decision engine holds
// a primary and a fallback client; both satisfy this interface.
type ModelClient interface {
	ID() string
	Call(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
