// Package storefakes provides in-memory stores used by service and handler
// tests.
//
// One mutex guards every table so multi-table operations are atomic the way
// the Postgres transactions are, and compare-and-swap updates fail with
// repository.ErrConflict exactly like the guarded UPDATEs.
package storefakes
