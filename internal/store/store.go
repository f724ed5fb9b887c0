// Package store holds the in-memory notification list the UI reads from
// and the SQLite ledger of alerts already shown to the user.
package store
