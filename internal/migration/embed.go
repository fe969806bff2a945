package migration

import "embed"

const migrationsDir = "migrations"

// One subdirectory per dialect, each with its own version sequence.
//
//go:embed migrations
var embeddedMigrations embed.FS
