// Package domain defines the payment ledger records the audit engine reads and
// the audit trail entries it appends.
//
// Transactions are owned by the payment system and are never mutated here.
// Audit entries are append-only; ordering by Timestamp (then ID) is the
// authoritative history of a transaction.
package domain
