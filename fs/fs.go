// Package appfs embeds the static files shipped with the binaries: SQL migrations, templates and assets.
package appfs

import "embed"

//go:embed migrations/*.sql all:assets
var FS embed.FS
