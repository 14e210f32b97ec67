// Package timeouts defines shared timeout constants used across the audit
// engine. Centralizing these values prevents drift between components and
// makes the durations discoverable.
package timeouts

import "time"

// StorePing caps the wait time when verifying a ledger store connection.
const StorePing = 5 * time.Second

// Delivery caps a single delivery call to the downstream channel.
const Delivery = 10 * time.Second

// ItemWrite caps one backfill insert, including its savepoint bookkeeping.
const ItemWrite = 5 * time.Second

// Shutdown limits how long telemetry and metric exporters may take to flush.
const Shutdown = 5 * time.Second
