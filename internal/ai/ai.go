// Package ai holds the contract shared by the LLM clients.
package ai

import "context"

// Generator sends a system instruction and a prompt to a language model and
// returns its text reply.
type Generator interface {
	GenerateContent(ctx context.Context, system, prompt string) (string, error)
	Model() string
}
