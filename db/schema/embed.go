// Package schema embeds the database migration files.
package schema

import "embed"

//go:embed *.sql
var Migrations embed.FS
