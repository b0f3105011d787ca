// Package migrations embeds the registry schema.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
