package timing

import (
	"log/slog"
	"math"

	"github.com/scwf/open-dubbing/internal/config"
	"github.com/scwf/open-dubbing/internal/logging"
	"github.com/scwf/open-dubbing/internal/subtitle"
)

// Allocator widens cues whose estimated speaking time exceeds their window by
// borrowing slack from adjacent gaps.
type Allocator struct {
	cfg    config.Timing
	logger *slog.Logger
}

// NewAllocator returns an allocator using the provided pacing configuration.
func NewAllocator(cfg config.Timing, logger *slog.Logger) *Allocator {
	return &Allocator{cfg: cfg, logger: logging.NewComponentLogger(logger, "timing")}
}

// Optimize runs one borrowing pass over the cues, assumed ordered by start
// time. It returns replacement cues (input is never mutated) and the
// per-cue decision trace. Invalid cues pass through untouched with an
// InvalidCue entry.
func (a *Allocator) Optimize(cues []subtitle.Cue) ([]subtitle.Cue, []Decision) {
	out := make([]subtitle.Cue, len(cues))
	copy(out, cues)

	decisions := make([]Decision, 0, len(out))
	n := len(out)

	// slack[g] guards the gap between cue g and cue g+1.
	slack := make([]int64, 0)
	if n > 1 {
		slack = make([]int64, n-1)
		for g := 0; g < n-1; g++ {
			gap := out[g].GapAfter(out[g+1])
			if reclaimable := gap - int64(a.cfg.MinGapThresholdMS); reclaimable > 0 {
				slack[g] = reclaimable
			}
		}
	}

	for i := 0; i < n; i++ {
		cue := out[i]
		if err := cue.Validate(); err != nil {
			decisions = append(decisions, InvalidCue{Index: cue.Index, Reason: err.Error()})
			a.logger.Warn("cue rejected by validation",
				logging.Int(logging.FieldCueIndex, cue.Index),
				logging.Error(err))
			continue
		}

		minRequired := MinRequiredMS(cue.Text, a.cfg)
		needed := minRequired - cue.DurationMS()
		if needed <= 0 {
			decisions = append(decisions, NoChange{Index: cue.Index})
			continue
		}

		var frontSlack, backSlack int64
		if i > 0 {
			frontSlack = slack[i-1]
		}
		if i < n-1 {
			backSlack = slack[i]
		}
		frontCap := applyRatio(frontSlack, a.cfg.BorrowRatio)
		backCap := applyRatio(backSlack, a.cfg.BorrowRatio)
		totalCap := frontCap + backCap
		totalNeeded := needed + int64(a.cfg.ExtraBufferMS)

		switch {
		case totalCap >= totalNeeded:
			front, back := splitBorrow(totalNeeded, frontCap, backCap)
			a.grant(out, slack, i, front, back)
			decisions = append(decisions, TimeBorrow{Index: cue.Index, FrontMS: front, BackMS: back})
			a.logger.Debug("borrowed time",
				logging.Int(logging.FieldCueIndex, cue.Index),
				logging.Int64("front_ms", front),
				logging.Int64("back_ms", back))
		case totalCap > 0:
			// Grant everything both gaps can give, then check whether the
			// cue still needs shortening.
			a.grant(out, slack, i, frontCap, backCap)
			decisions = append(decisions, TimeBorrow{Index: cue.Index, FrontMS: frontCap, BackMS: backCap, Partial: true})
			if shortfall := minRequired - out[i].DurationMS(); shortfall > 0 {
				decisions = append(decisions, NeedEscalation{Index: cue.Index, ShortfallMS: shortfall})
			}
		default:
			decisions = append(decisions, NeedEscalation{Index: cue.Index, ShortfallMS: needed})
		}
	}

	return out, decisions
}

func (a *Allocator) grant(out []subtitle.Cue, slack []int64, i int, front, back int64) {
	start := out[i].StartMS - front
	if start < 0 {
		start = 0
	}
	out[i] = out[i].WithWindow(start, out[i].EndMS+back)
	if front > 0 {
		slack[i-1] -= front
	}
	if back > 0 {
		slack[i] -= back
	}
}

func applyRatio(slackMS int64, ratio float64) int64 {
	if slackMS <= 0 {
		return 0
	}
	return int64(math.Floor(float64(slackMS) * ratio))
}

// splitBorrow distributes totalNeeded across the two caps proportionally,
// then tops up the integer-rounding shortfall from whichever side has more
// unused capacity. Caller guarantees frontCap+backCap >= totalNeeded.
func splitBorrow(totalNeeded, frontCap, backCap int64) (front, back int64) {
	totalCap := frontCap + backCap
	front = totalNeeded * frontCap / totalCap
	back = totalNeeded * backCap / totalCap

	for remainder := totalNeeded - front - back; remainder > 0; remainder-- {
		frontRoom := frontCap - front
		backRoom := backCap - back
		if frontRoom >= backRoom && frontRoom > 0 {
			front++
		} else {
			back++
		}
	}
	return front, back
}
