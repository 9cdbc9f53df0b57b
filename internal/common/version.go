package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Build metadata, set with -ldflags "-X .../common.Version=..."
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// VersionInfo is the build metadata in one value.
type VersionInfo struct {
	Version   string `json:"version"`
	Build     string `json:"build"`
	GitCommit string `json:"git_commit"`
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", v.Version, v.Build, v.GitCommit)
}

// GetVersionInfo returns the current build metadata.
func GetVersionInfo() VersionInfo {
	return VersionInfo{Version: Version, Build: Build, GitCommit: GitCommit}
}

func GetVersion() string   { return Version }
func GetBuild() string     { return Build }
func GetGitCommit() string { return GitCommit }

// GetFullVersion returns version, build and commit on one line.
func GetFullVersion() string {
	return GetVersionInfo().String()
}

// versionFiles lists where a .version file is looked for: next to the
// binary, then the working directory.
func versionFiles() []string {
	var paths []string
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), ".version"))
	}
	return append(paths, ".version")
}

// LoadVersionFromFile fills metadata still at its default from the first
// readable .version file ("version: 1.2.0" lines). ldflags values win.
func LoadVersionFromFile() {
	for _, path := range versionFiles() {
		if applyVersionFile(path) {
			return
		}
	}
}

func applyVersionFile(path string) bool {
	values, err := godotenv.Read(path)
	if err != nil {
		return false
	}
	if v := values["version"]; v != "" && Version == "dev" {
		Version = v
	}
	if v := values["build"]; v != "" && Build == "unknown" {
		Build = v
	}
	if v := values["commit"]; v != "" && GitCommit == "unknown" {
		GitCommit = v
	}
	return true
}
