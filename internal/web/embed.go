// Package web serves the embedded map client and the game asset directory.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
)

//go:embed dist/*
var staticFiles embed.FS

// GetFileSystem returns the embedded filesystem with the dist folder as root.
func GetFileSystem() (fs.FS, error) {
	return fs.Sub(staticFiles, "dist")
}

// RegisterStaticRoutes registers the client and asset routes with Echo. API
// routes must be registered first. assetsDir holds the game images served
// under /assets, with its maps folder also served under /maps where the map
// catalog points; it is skipped when empty or missing.
func RegisterStaticRoutes(e *echo.Echo, assetsDir string) error {
	staticFS, err := GetFileSystem()
	if err != nil {
		return err
	}

	if assetsDir != "" {
		if info, err := os.Stat(assetsDir); err == nil && info.IsDir() {
			e.Static("/assets", assetsDir)
			e.Static("/maps", filepath.Join(assetsDir, "maps"))
		}
	}

	fileServer := http.FileServer(http.FS(staticFS))
	e.GET("/*", func(c echo.Context) error {
		requestPath := path.Clean(c.Request().URL.Path)

		// Unknown API paths are errors, not client routes.
		if requestPath == "/api" || strings.HasPrefix(requestPath, "/api/") {
			return echo.ErrNotFound
		}

		name := strings.TrimPrefix(requestPath, "/")
		if name == "" {
			return serveIndexHTML(c, staticFS)
		}
		stat, err := fs.Stat(staticFS, name)
		if err != nil || stat.IsDir() {
			// Client-side route
			return serveIndexHTML(c, staticFS)
		}

		fileServer.ServeHTTP(c.Response(), c.Request())
		return nil
	})

	return nil
}

// serveIndexHTML serves the client entry point
func serveIndexHTML(c echo.Context, staticFS fs.FS) error {
	content, err := fs.ReadFile(staticFS, "index.html")
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "index.html not found")
	}
	c.Response().Header().Set("Cache-Control", "no-cache")
	return c.HTMLBlob(http.StatusOK, content)
}

// HasEmbeddedFiles reports whether a client build with an index.html is embedded.
func HasEmbeddedFiles() bool {
	_, err := fs.Stat(staticFiles, "dist/index.html")
	return err == nil
}
