// Package config loads, normalizes, and validates cinelex configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, optionally loads a dotenv file, and honours
// environment fallbacks such as TMDB_API_KEY and OPENSUBTITLES_API_KEY. The
// Config type centralizes every knob the daemon and CLI need so external
// service credentials, queue tuning, and storage backends are discovered in
// one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
