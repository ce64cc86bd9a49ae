// Package tmdb ingests movie metadata from The Movie Database.
//
// Fetch walks /discover/movie one calendar quarter at a time so no single
// query runs past the provider's 500-page ceiling, then resolves each hit
// through /movie/{id} with credits appended. Every request passes through a
// ratelimit.Limiter and HTTP 429 responses are retried with backoff.
package tmdb
