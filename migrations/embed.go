// Package migrations embeds the journal schema into the binary so a node
// can create its database without SQL files on disk.
package migrations

import "embed"

// FS holds every VERSION_description.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
