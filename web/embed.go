package web

import (
	"embed"
	"io/fs"
)

//go:embed index.html app.js styles.css
var content embed.FS

// Files exposes the embedded status page.
func Files() fs.FS {
	return content
}
