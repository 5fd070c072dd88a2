// Package migrations embeds the SQL schema so every binary carries it.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
