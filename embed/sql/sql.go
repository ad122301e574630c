package sql

import "embed"

// Migrations holds the goose migrations applied by db.Init.
//
//go:embed migrations/*.sql
var Migrations embed.FS
