// Package providers implements the Reviewer interface for each supported AI
// backend.
//
// The set of backends is closed: "openai" (chat completions through
// go-openai) and "anthropic" (messages API through the official SDK). [New]
// validates the name and API key before any network activity and returns
// [ErrUnknownProvider] or [ErrMissingAPIKey] otherwise.
//
// Backend failures are reported as [*Error], carrying the HTTP status when a
// response was received. Rate-limited and 5xx OpenAI calls are retried with
// exponential back-off; the Anthropic SDK retries on its own.
//
// [WithBreaker] and [WithCache] decorate any Reviewer with a circuit breaker
// and an on-disk response cache.
package providers
