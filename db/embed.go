// Package db embeds the SQL migrations and the sample catalog.
package db

import "embed"

// Migrations holds the versioned schema migrations, applied with golang-migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS
