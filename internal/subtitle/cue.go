package subtitle

import (
	"fmt"
	"strings"
)

// Cue is one timed subtitle entry. Times are milliseconds from track start.
type Cue struct {
	Index   int
	StartMS int64
	EndMS   int64
	Text    string
}

// DurationMS returns the cue window length.
func (c Cue) DurationMS() int64 {
	return c.EndMS - c.StartMS
}

// WithText returns a copy of the cue carrying replacement text.
func (c Cue) WithText(text string) Cue {
	c.Text = text
	return c
}

// WithWindow returns a copy of the cue with adjusted timestamps.
func (c Cue) WithWindow(startMS, endMS int64) Cue {
	c.StartMS = startMS
	c.EndMS = endMS
	return c
}

// Validate reports whether the cue is structurally usable: a positive
// duration and non-empty text.
func (c Cue) Validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("cue %d: empty text", c.Index)
	}
	if c.StartMS < 0 {
		return fmt.Errorf("cue %d: negative start %dms", c.Index, c.StartMS)
	}
	if c.DurationMS() <= 0 {
		return fmt.Errorf("cue %d: non-positive duration (%dms -> %dms)", c.Index, c.StartMS, c.EndMS)
	}
	return nil
}

// Overlaps reports whether the cue's window intersects the other cue's.
func (c Cue) Overlaps(other Cue) bool {
	return c.StartMS < other.EndMS && other.StartMS < c.EndMS
}

// GapAfter returns the silence between this cue and the next, which may be
// negative when the cues overlap.
func (c Cue) GapAfter(next Cue) int64 {
	return next.StartMS - c.EndMS
}
