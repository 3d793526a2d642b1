// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package identity supplies the per-installation vendor identifier and the
// application metadata attached to pin validation reports.
package identity

import (
	"runtime"
	"runtime/debug"
)

// UnknownVersion is reported when the host cannot supply a version.
const UnknownVersion = "N/A"

// AppInfo describes the running application. It is resolved once at
// initialization and copied into every report.
type AppInfo struct {
	// PackageName identifies the application, e.g. its module path.
	PackageName string

	// Version is the application version, or UnknownVersion.
	Version string

	// Platform is the operating system and architecture, e.g. "linux/amd64".
	Platform string
}

// HostProvider is the host environment's source of application metadata.
type HostProvider interface {
	// PackageName returns the application identifier.
	PackageName() string

	// Version returns the application version.
	Version() (string, error)
}

// ResolveAppInfo reads the application metadata from host. A version that
// cannot be read, or is empty, becomes UnknownVersion.
func ResolveAppInfo(host HostProvider) AppInfo {
	if host == nil {
		host = BuildInfoHost{}
	}
	version, err := host.Version()
	if err != nil || version == "" {
		version = UnknownVersion
	}
	return AppInfo{
		PackageName: host.PackageName(),
		Version:     version,
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// StaticHost is a HostProvider with fixed values.
type StaticHost struct {
	Name       string
	AppVersion string
}

// PackageName returns h.Name.
func (h StaticHost) PackageName() string { return h.Name }

// Version returns h.AppVersion, or ErrVersionUnavailable when it is empty.
func (h StaticHost) Version() (string, error) {
	if h.AppVersion == "" {
		return "", ErrVersionUnavailable
	}
	return h.AppVersion, nil
}

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// BuildInfoHost reports the main module path and version embedded in the
// binary by the Go toolchain.
type BuildInfoHost struct{}

// PackageName returns the main module path, or the empty string when the
// binary carries no build information.
func (BuildInfoHost) PackageName() string {
	bi, ok := readBuildInfo()
	if !ok {
		return ""
	}
	if bi.Main.Path != "" {
		return bi.Main.Path
	}
	return bi.Path
}

// Version returns the main module version. Development builds report
// "(devel)", which is treated as unavailable.
func (BuildInfoHost) Version() (string, error) {
	bi, ok := readBuildInfo()
	if !ok || bi.Main.Version == "" || bi.Main.Version == "(devel)" {
		return "", ErrVersionUnavailable
	}
	return bi.Main.Version, nil
}
