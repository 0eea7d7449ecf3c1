// Package timing implements the subtitle time-borrowing allocator.
//
// For every cue it estimates the minimum speaking duration from text density,
// then tries to widen cues that cannot fit their window by borrowing silence
// from the gaps on either side. Each gap's reclaimable slack beyond a
// protected minimum is tracked in an array owned by one optimization pass and
// decremented as borrows are granted, so the same silence is never handed to
// two neighboring cues. Cues that still cannot fit are flagged for text
// simplification; the allocator never changes text itself.
//
// The pass is strictly sequential and left-to-right. An earlier cue competing
// for a gap is served before a later one; do not parallelize it.
package timing
