// Package audio renders synthesized segments into a single track. The
// assembler places each segment at its exact cue window, stretching or
// padding audio to fit sample-accurately, while the simpler concatenate
// strategy ignores timing entirely. WAV codec and resampling helpers live
// here too since every engine adapter needs them.
package audio
