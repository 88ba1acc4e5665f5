// Package completion adapts eino chat models to the conversation layer.
//
// Client converts session history to eino messages, calls the model, and
// classifies failures so the retry engine and circuit breaker can act on
// them. Subpackage openai provides a chat model for OpenAI-compatible
// HTTP endpoints.
package completion
