// Package synthesis turns cue text into audio segments through a pluggable
// engine, running calls on a bounded worker pool with per-cue retries.
package synthesis
