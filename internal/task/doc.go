// Package task persists dubbing tasks in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, stuck-task recovery, and the queued -> processing -> terminal
// status transitions. Tasks capture progress, the source subtitle path, the
// produced track path, and failure detail so the HTTP API and CLI can observe
// a run without sharing memory with the pipeline.
//
// The database is treated as transient storage for in-flight jobs rather than
// a long-term archive. Schema changes bump schemaVersion in schema.go; users
// clear the database to adopt the new schema.
package task
