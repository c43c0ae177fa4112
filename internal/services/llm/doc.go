// Package llm is a small OpenRouter chat completion client used by the llm
// content classifier.
//
// Requests ask for a JSON object reply. Replies are accepted from the message
// content, a streaming-style delta, legacy text, or tool call arguments, and
// DecodeJSON strips code fences and surrounding prose.
//
// HTTP 408, 429 and 5xx responses, empty replies, and network timeouts are
// retried with doubling backoff (Retry-After is honored, capped at the max
// delay). Context cancellation stops retries immediately.
package llm
