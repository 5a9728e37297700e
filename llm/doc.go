// Package llm defines the language model collaborator interface, the
// Gemini HTTP provider, structured output recovery for model responses,
// and token counting used for prompt budgets.
package llm
