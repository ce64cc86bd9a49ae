// Package store persists cinelex state in SQLite: the movie catalog, sync
// jobs, subtitle work items, and analysis results.
//
// Every connection runs in WAL mode with a busy timeout and begins write
// transactions immediately, so the subtitle claim (ClaimSubtitles) is safe
// across goroutines and processes sharing one database file. Busy errors are
// retried with a short exponential backoff.
package store
