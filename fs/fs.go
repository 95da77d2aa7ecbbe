// Package appfs bundles the files the binaries need at runtime.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/* discounts.yaml
var FS embed.FS
