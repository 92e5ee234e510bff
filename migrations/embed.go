// Package migrations embeds the identity core's schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
