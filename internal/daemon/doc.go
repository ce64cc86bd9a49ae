// Package daemon coordinates the long-running cinelex process.
//
// Wire assembles the store, byte store, API clients, and pipelines from
// configuration. A Daemon takes a flock-based single-instance lock and runs
// the sync runner, the retry sweep, the optional acquisition and processing
// lanes, and the HTTP API. API-triggered acquisition and processing runs go
// through the background job pool.
//
// Keep orchestration here: ingestion, acquisition, analysis, and search logic
// live in their own packages.
package daemon
