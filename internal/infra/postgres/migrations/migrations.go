// Package migrations holds the bun migrations for the catalog and race tables.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
