// Package stores persists the run journal in SQLite. Each run records its
// parameters and final status, and each completed iteration records the
// configuration document, output map and accumulated overrides it used.
// The schema is managed with embedded migrations.
package stores
