package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/scope-engine/scope-assistant/examples"
)

// runInit initializes a working directory with a default config file.
// Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing SCOPE Assistant workspace in %s\n", dir)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, "scope.yaml")
	if err := writeIfMissing(configPath, examples.ConfigYAML, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit scope.yaml, then run `scope seed` and `scope serve`.")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist, so init never overwrites user customizations.
func writeIfMissing(path string, content []byte, perm os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, content, perm)
}
