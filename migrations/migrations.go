// Package migrations встраивает SQL-миграции в бинарник, чтобы воркер
// мог применять их при старте без доступа к файловой системе.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
