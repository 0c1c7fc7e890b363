package db

import "embed"

// Migrations holds the credential store schema, one up/down pair per version.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations holding the SQL files.
const MigrationsDir = "migrations"
