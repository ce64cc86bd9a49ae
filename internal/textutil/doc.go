// Package textutil normalizes free text for search and linguistic analysis.
//
// Fold applies Unicode case folding and strips combining marks so "Amélie"
// and "AMELIE" compare equal. Words splits folded text into letter/digit
// runs, Stem trims common English inflections, and IsStopWord reports the
// function words that carry no lexical weight.
package textutil
