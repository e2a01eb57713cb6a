// Package db embeds the SQL schema applied at startup.
package db

import _ "embed"

// Schema creates the catalog, promo, order, API key and outbox tables. Every
// statement is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
