// Package search implements the hybrid movie title search.
//
// Short queries are treated as prefixes or typos and ranked by trigram
// similarity; longer queries are ranked by a full-text score blended with
// popularity and a word-similarity fallback. Trigram similarity and
// word_similarity follow pg_trgm's definitions so rankings match a Postgres
// deployment of the same catalog.
package search
