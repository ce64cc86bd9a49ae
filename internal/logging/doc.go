// Package logging builds the slog loggers shared by the cinelex CLI and daemon.
//
// Console output is a readable header-plus-fields layout; JSON output uses
// ts/level/msg keys. When a log directory is configured every record is also
// appended as JSON to cinelex.log. Context helpers tag lines with job, item,
// stage, and correlation identifiers carried by the services package.
package logging
