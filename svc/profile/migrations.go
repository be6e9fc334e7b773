package profile

import "embed"

// Migrations holds the goose migrations for the profile schema under "migrations".
//
//go:embed migrations/*.sql
var Migrations embed.FS
