// Package services defines the error taxonomy and context helpers shared by
// every cinelex component.
//
// Failures are tagged with one of the sentinel markers through Wrap so that
// callers can decide, via Classify, whether to retry, skip the record, or stop.
// The context helpers stamp job, item, stage, and correlation identifiers that
// the logging package lifts into structured fields.
package services
