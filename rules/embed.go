// Package rules embeds the Risor rule scripts that ship with regraft.
package rules

import "embed"

// FS holds the built-in *.risor rule scripts.
//
//go:embed *.risor
var FS embed.FS
