// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// render writes a command result in the --format selected on the command
// line to --output or stdout. text produces the human-readable form.
func render(v any, text func(w io.Writer)) error {
	data, err := encodeResult(format, v, text)
	if err != nil {
		return err
	}
	return emit(data)
}

// encodeResult serializes v as text, json or yaml. An empty format is text.
func encodeResult(outFormat string, v any, text func(w io.Writer)) ([]byte, error) {
	var buf bytes.Buffer
	switch outFormat {
	case "", "text":
		text(&buf)
	case "json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("%w: encode json: %w", ErrFileOperation, err)
		}
	case "yaml":
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("%w: encode yaml: %w", ErrFileOperation, err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("%w: encode yaml: %w", ErrFileOperation, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidInput, outFormat)
	}
	return buf.Bytes(), nil
}

// emit sends rendered output to the --output file, created owner-only, or
// to stdout when no file is set.
func emit(data []byte) (err error) {
	var w io.Writer = os.Stdout
	if outputFile != "" {
		f, openErr := os.OpenFile(outputFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if openErr != nil {
			return fmt.Errorf("%w: %w", ErrFileOperation, openErr)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("%w: %w", ErrFileOperation, closeErr)
			}
		}()
		w = f
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("%w: %w", ErrFileOperation, err)
	}
	if outputFile != "" {
		slog.Debug("output written", "path", outputFile, "bytes", len(data))
	}
	return nil
}
