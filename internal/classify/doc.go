// Package classify turns transcript text into content flags.
//
// ContentClassifier is the injection point used by the transcription
// extractor. Placeholder is the default and emits a single zero-confidence
// "text" flag; Keyword matches configured words; LLM delegates to a chat
// model through internal/services/llm.
package classify
