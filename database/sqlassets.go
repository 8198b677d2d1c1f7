// Package sqlassets embeds the goose migration sets so binaries stay
// self-contained. migrations/control holds the control-plane schema,
// migrations/tenant the per-tenant schema.
package sqlassets

import "embed"

//go:embed migrations/control/*.sql migrations/tenant/*.sql
var Migrations embed.FS
