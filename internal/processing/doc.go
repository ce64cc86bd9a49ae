// Package processing drains the subtitle work queue.
//
// A Driver claims batches of eligible subtitles, analyzes each one
// independently, persists the resulting profile, and finalizes every claimed
// item as PROCESSED or FAILED. Finalization runs on a context detached from
// cancellation so a shutdown never strands a claim.
package processing
