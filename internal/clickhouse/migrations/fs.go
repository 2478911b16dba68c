// Package migrations embeds the ClickHouse schema migrations for the
// legacy relational store so goose can run them without touching disk.
package migrations

import "embed"

//go:embed sql/*.sql
var FS embed.FS
