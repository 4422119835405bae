// Package queries ships the default order-level and item-level SQL templates.
package queries

import (
	"embed"
	"io/fs"
)

// Template file names.
const (
	OrderLevel = "S01_order_level.sql"
	ItemLevel  = "S02_item_level.sql"
)

//go:embed sql/*.sql
var embedded embed.FS

// Default returns the embedded templates rooted at the template directory.
func Default() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		// fs.Sub only fails on an invalid path literal.
		panic(err)
	}
	return sub
}
