// Package subtitles acquires subtitle files for catalog movies.
//
// Candidates returned by OpenSubtitles are scored, the best one is
// downloaded, and the bytes land in the blob store under a content-addressed
// path alongside a PENDING subtitle row that the analysis queue later claims.
package subtitles
