// Package subtitle models timed subtitle cues and parses SRT and plain text
// sources into them.
//
// Cues are value types: the timing allocator and simplification gateway
// produce replacement cues rather than mutating in place, so a failed run can
// always fall back to the original cue list. The SRT reader tolerates
// real-world files: decimal-point timestamps, missing index lines, GBK
// encoded content, and malformed blocks that are skipped with a warning.
package subtitle
