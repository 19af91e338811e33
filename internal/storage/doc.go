// Package storage is the optional dispatch audit trail: every notification
// dispatch is appended for operator review. It records history only; the
// engine's dedup decisions never read from it.
package storage
