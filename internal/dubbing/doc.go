// Package dubbing orchestrates the full pipeline: parse the subtitle file,
// widen cue windows by borrowing slack, simplify lines that still do not fit,
// synthesize each cue, and merge everything into one sample-accurate track.
package dubbing
