package frontend

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/styles.css static/script.js
var staticAssets embed.FS

// StaticHandler serves the embedded stylesheet and client script. Mount it
// under /static/ with the prefix stripped.
func StaticHandler() http.Handler {
	subFS, err := fs.Sub(staticAssets, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(subFS))
}
