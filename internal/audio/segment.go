package audio

// Segment is one synthesized cue's audio, tagged with the cue's display index
// and the (possibly widened) timing window it must occupy in the final track.
// Samples are mono float32 in [-1, 1] at the pipeline's global sample rate.
type Segment struct {
	Index   int
	StartMS int64
	EndMS   int64
	Samples []float32
}

// Empty reports whether the segment carries no audio.
func (s Segment) Empty() bool {
	return len(s.Samples) == 0
}

// DurationMS is the spoken length of the samples, not the timing window.
func (s Segment) DurationMS(sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return int64(float64(len(s.Samples)) / float64(sampleRate) * 1000)
}

// WindowMS is the length of the timing window the segment should fill.
func (s Segment) WindowMS() int64 {
	return s.EndMS - s.StartMS
}
