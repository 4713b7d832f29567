// Package migrations は goose で適用する SQL マイグレーションを埋め込みます。
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
