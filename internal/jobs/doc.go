// Package jobs runs named background tasks on a fixed worker pool and keeps
// their status for polling. The daemon uses it for API-triggered acquisition
// and processing runs.
package jobs
