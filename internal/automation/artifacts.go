package automation

import (
	"fmt"
	"os"
	"path/filepath"
)

// deleteArtifactFiles removes the two on-disk artifact shapes spec.md §6
// describes for a program's compiled output: an optional "{address}.dll"
// file and an optional "arduino/{address}/" source directory. Both
// removals are best-effort — a missing file or directory is not an error.
func deleteArtifactFiles(artifactsDir string, address int) error {
	dllPath := filepath.Join(artifactsDir, fmt.Sprintf("%d.dll", address))
	if err := os.Remove(dllPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing compiled artifact: %w", err)
	}

	arduinoDir := filepath.Join(artifactsDir, "arduino", fmt.Sprintf("%d", address))
	if err := os.RemoveAll(arduinoDir); err != nil {
		return fmt.Errorf("removing arduino sources: %w", err)
	}

	return nil
}
