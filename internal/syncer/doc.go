// Package syncer schedules and runs catalog ingestion jobs.
//
// Every sync request becomes a PENDING sync_jobs row first. A runner claims
// jobs in priority order, streams records from the catalog source into the
// movies table, and finalizes the row. A periodic sweep re-enqueues failed
// jobs with exponential backoff, superseding the original row.
package syncer
