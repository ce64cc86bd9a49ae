// Package opensubtitles is a small client for the OpenSubtitles REST API:
// login, subtitle search by TMDB id, and download. Each endpoint has its own
// limiter, and the client tracks the account's remaining download quota.
package opensubtitles
