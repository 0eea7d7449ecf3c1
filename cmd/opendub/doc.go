// Package main hosts the opendub CLI entrypoint and command graph.
//
// The Cobra-based command tree covers one-shot dubbing runs, timing dry runs,
// subtitle validation, task queue maintenance, the HTTP task server, and
// configuration scaffolding. It centralizes configuration resolution and
// logger setup so subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
