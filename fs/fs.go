package appfs

import "embed"

// FS holds the files embedded into the binaries.
//go:embed migrations/*.sql
var FS embed.FS
