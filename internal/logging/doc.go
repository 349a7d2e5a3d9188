// Package logging provides structured logging for ScholarSearch.
//
// Logs are written as JSON lines to a size-rotated file, optionally
// mirrored to stderr.
package logging
