// Command cinelex is the operator CLI for the cinelex catalog.
//
// Commands open the same SQLite store the daemon uses, so sync requests
// enqueued here are picked up by a running cinelexd. Acquisition and
// processing commands run a single pass in the foreground.
package main
