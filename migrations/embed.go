// Package migrations embeds the state history schema into the binary.
package migrations

import "embed"

// FS holds the *.sql migration files, at the root of the filesystem.
//
//go:embed *.sql
var FS embed.FS
