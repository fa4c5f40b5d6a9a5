// Package web embeds the page served by the osvm monitor.
package web

import (
	"embed"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path"
	"runtime"
	"strings"
)

//go:embed dist/*
var staticAssets embed.FS

// GetAssets returns the static assets. When OSVM_MONITOR_DEV is set, the
// page is served from the source tree so that it can be edited live.
func GetAssets() http.FileSystem {
	if !isDevelopmentMode() {
		subFS, err := fs.Sub(staticAssets, "dist")
		if err != nil {
			panic(err)
		}

		return http.FS(subFS)
	}

	_, assetPath, _, ok := runtime.Caller(0)
	if !ok {
		panic("error getting path")
	}

	assetPath = path.Join(path.Dir(assetPath), "dist")
	log.Printf("monitor development mode, serving assets from %s", assetPath)

	return http.Dir(assetPath)
}

func isDevelopmentMode() bool {
	evValue, exist := os.LookupEnv("OSVM_MONITOR_DEV")
	if !exist {
		return false
	}

	return strings.EqualFold(evValue, "true") || evValue == "1"
}
