// Package db embeds the trainer's SQL migrations for binaries built with
// the embed_migrations tag.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
