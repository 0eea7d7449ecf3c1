// Package config loads, normalizes, and validates open-dubbing configuration
// data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DEEPSEEK_API_KEY. The Config type centralizes every knob the server and CLI
// need, from allocator pacing constants to engine credentials.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
