package llm

import "fmt"

// ProviderError reports a failed exchange with the model provider: a non-2xx
// status, a timeout, or a body the extractor could not make sense of.
// Message is already redacted when the error leaves the client.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("LLM API HTTP error: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("LLM API error: %s", e.Message)
}

// ModelError reports a syntactically invalid model specification supplied by
// the caller.
type ModelError struct {
	Reason string
}

func (e *ModelError) Error() string {
	return "invalid model specification: " + e.Reason
}
