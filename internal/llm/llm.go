// Package llm abstracts the generative text provider behind a small
// Client interface and provides the production implementation on top
// of langchaingo, composed with retry and admission control.
package llm

import (
	"context"
	"strings"
)

// Attachment is inline context material for a generation request,
// typically a distilled knowledge document or a small source file.
type Attachment struct {
	Name    string
	MIME    string
	Content string
}

// Request is one generation call.
type Request struct {
	// Prompt is the user prompt.
	Prompt string

	// System is the optional system instruction.
	System string

	// Attachments are folded into the request as additional context.
	Attachments []Attachment

	// Temperature overrides the client default when non-zero.
	Temperature float64
}

// Client generates text from a request. Implementations return an
// error only for transport or provider failure; the content of the
// response is never validated here.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// IsTransient reports whether err represents a transient provider
// failure. Errors from the underlying SDK are opaque, so this matches
// the failure classes the provider is known to encode in its messages.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"429", "rate limit", "resource exhausted", "quota",
		"500", "502", "503", "504",
		"internal error", "unavailable", "overloaded",
		"timeout", "deadline exceeded", "connection reset",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// EstimateTokens approximates the provider's token accounting for
// admission control: roughly one token per four bytes of text.
func EstimateTokens(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += len(t)
	}
	n := total / 4
	if n < 1 {
		n = 1
	}
	return n
}
