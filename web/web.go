// Package web embeds the single-page front end served at "/".
package web

import "embed"

//go:embed index.html
var FS embed.FS
