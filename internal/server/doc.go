// Package server runs the HTTP API and the background worker pool that
// executes queued dubbing tasks. A file lock keeps the instance singular so
// two servers never compete for the same task database.
package server
