package migrations

import "embed"

// FS holds the delivery journal schema.
//
//go:embed *.sql
var FS embed.FS
