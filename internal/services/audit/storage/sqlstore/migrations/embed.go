// Package migrations embeds the ledger schema for each supported dialect.
package migrations

import "embed"

// FS holds sqlite/ and postgres/ migration directories.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
