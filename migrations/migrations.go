// Package migrations carries the SQL schema migrations compiled into the
// binaries, so ecountctl migrate needs no files on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
