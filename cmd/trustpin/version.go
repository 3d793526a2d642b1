// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-trustpin/pkg/identity"
)

// version is set at build time via -ldflags "-X main.version=...".
// Falls back to the VERSION file, then to the module version embedded by
// the Go toolchain.
var version string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of trustpin",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "trustpin version %s\n", resolveVersion())
		return nil
	},
}

// resolveVersion returns the version string, preferring the build-time
// value, then a VERSION file in the working directory or next to the
// binary, then the embedded module version.
func resolveVersion() string {
	if version != "" {
		return version
	}

	paths := []string{"VERSION"}
	if execPath, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(execPath), "VERSION"))
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if v := strings.TrimSpace(string(data)); v != "" {
			return v
		}
	}

	if v, err := (identity.BuildInfoHost{}).Version(); err == nil {
		return v
	}
	return "unknown"
}
