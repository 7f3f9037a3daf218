// Package misc keeps program identity in a single place.
package misc

import (
	"os"
	"path/filepath"
	"strings"
)

// Set by linker with -X flags.
var (
	appName = ""
	version = "dev"
	githash = "unknown"
)

// GetAppName returns program name, derived from executable when not set at build time.
func GetAppName() string {
	if len(appName) > 0 {
		return appName
	}
	if exe, err := os.Executable(); err == nil {
		return strings.TrimSuffix(filepath.Base(exe), filepath.Ext(exe))
	}
	return "wte"
}

func GetVersion() string {
	return version
}

func GetGitHash() string {
	return githash
}
