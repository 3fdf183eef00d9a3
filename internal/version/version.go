// Package version holds build-time version information.
//
// The variables are set via ldflags during build:
//
//	-ldflags "-X tenantmigrate/internal/version.version=v1.0.0 -X tenantmigrate/internal/version.commit=abc123 -X tenantmigrate/internal/version.buildTime=2026-01-01T00:00:00Z"
package version

import (
	"fmt"
	"io"
	"strings"
)

//nolint:gochecknoglobals // Required for build-time injection via ldflags.
var (
	version   string
	commit    string
	buildTime string
)

// ApplicationName is the name displayed in version output.
const ApplicationName = "TenantMigrate CLI"

// Default values used when build information is not available.
const (
	DefaultVersion   = "dev"
	DefaultCommit    = "unknown"
	DefaultBuildTime = "unknown"
)

// Info carries version information with defaults applied.
type Info struct {
	Version   string
	Commit    string
	BuildTime string
}

// Get returns the current version information.
func Get() *Info {
	return &Info{
		Version:   withDefault(version, DefaultVersion),
		Commit:    withDefault(commit, DefaultCommit),
		BuildTime: withDefault(buildTime, DefaultBuildTime),
	}
}

func withDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

// String returns the bare version number.
func (i *Info) String() string {
	return i.Version
}

// FormatFull returns a multi-line rendering with application name, version,
// commit, and build time.
func (i *Info) FormatFull() string {
	var b strings.Builder
	b.WriteString(ApplicationName + "\n")
	b.WriteString("Version: " + i.Version + "\n")
	b.WriteString("Commit: " + i.Commit + "\n")
	b.WriteString("Built: " + i.BuildTime + "\n")
	return b.String()
}

// Write renders the version to w, short or full.
func (i *Info) Write(w io.Writer, short bool) error {
	if short {
		_, err := fmt.Fprintln(w, i.String())
		return err
	}
	_, err := fmt.Fprint(w, i.FormatFull())
	return err
}

// IsDevelopment reports whether this is an unversioned development build.
func (i *Info) IsDevelopment() bool {
	return i.Version == DefaultVersion
}

// SetBuildVars overrides the build-time variables. Primarily for tests.
func SetBuildVars(ver, com, bt string) {
	version = ver
	commit = com
	buildTime = bt
}

// ResetBuildVars clears all build variables. Primarily for tests.
func ResetBuildVars() {
	version = ""
	commit = ""
	buildTime = ""
}
