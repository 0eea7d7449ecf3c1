package timing

import "fmt"

// Decision is one entry of the allocator's audit trail. The set of variants
// is closed: NoChange, TimeBorrow, NeedEscalation, and InvalidCue. A cue that
// receives a partial borrow records both a TimeBorrow and a NeedEscalation.
type Decision interface {
	// CueIndex is the display index of the cue the decision concerns.
	CueIndex() int
	// Describe renders a short human-readable summary for traces and tables.
	Describe() string

	isDecision()
}

// NoChange records that a cue's window already covers its estimated
// speaking time.
type NoChange struct {
	Index int
}

// TimeBorrow records milliseconds reclaimed from the neighboring gaps.
// Partial marks a grant that exhausted both gaps without covering the full
// requirement.
type TimeBorrow struct {
	Index   int
	FrontMS int64
	BackMS  int64
	Partial bool
}

// NeedEscalation records the speaking-time shortfall that remains after
// borrowing, which the simplification gateway is asked to close.
type NeedEscalation struct {
	Index       int
	ShortfallMS int64
}

// InvalidCue records a cue rejected by validation. The cue passes through
// the allocator untouched.
type InvalidCue struct {
	Index  int
	Reason string
}

func (d NoChange) CueIndex() int       { return d.Index }
func (d TimeBorrow) CueIndex() int     { return d.Index }
func (d NeedEscalation) CueIndex() int { return d.Index }
func (d InvalidCue) CueIndex() int     { return d.Index }

func (d NoChange) Describe() string { return "no change" }

func (d TimeBorrow) Describe() string {
	if d.Partial {
		return fmt.Sprintf("borrowed front=%dms back=%dms (partial)", d.FrontMS, d.BackMS)
	}
	return fmt.Sprintf("borrowed front=%dms back=%dms", d.FrontMS, d.BackMS)
}

func (d NeedEscalation) Describe() string {
	return fmt.Sprintf("needs simplification, short %dms", d.ShortfallMS)
}

func (d InvalidCue) Describe() string { return "invalid: " + d.Reason }

func (NoChange) isDecision()       {}
func (TimeBorrow) isDecision()     {}
func (NeedEscalation) isDecision() {}
func (InvalidCue) isDecision()     {}

// Escalations filters the trace down to the escalation requests, in trace
// order.
func Escalations(decisions []Decision) []NeedEscalation {
	var out []NeedEscalation
	for _, d := range decisions {
		if esc, ok := d.(NeedEscalation); ok {
			out = append(out, esc)
		}
	}
	return out
}
