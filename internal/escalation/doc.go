// Package escalation shortens cue text through an LLM when borrowing time
// from neighboring gaps cannot make a line speakable. Requests run under a
// bounded, rate-limited pool and failures fall back to the original text.
package escalation
