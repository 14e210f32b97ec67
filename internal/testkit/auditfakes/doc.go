// Package auditfakes provides in-memory ledger and journal fakes used by
// audit service tests.
//
// The fakes mirror the SQL store contract closely enough for engine-level
// tests: ordering, per-item isolation and batched commits.
package auditfakes
