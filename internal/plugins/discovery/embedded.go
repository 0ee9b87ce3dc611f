package discovery

import (
	"embed"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
)

//go:embed all:builtin
var embeddedPlugins embed.FS

// ExtractEmbedded copies the built-in plugin modules into targetDir, one
// directory per plugin. Existing files are overwritten.
func ExtractEmbedded(targetDir string) error {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("failed to create plugin directory: %w", err)
	}

	err := fs.WalkDir(embeddedPlugins, "builtin", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel("builtin", filepath.FromSlash(path))
		if err != nil {
			return err
		}
		targetPath := filepath.Join(targetDir, relPath)

		if d.IsDir() {
			return os.MkdirAll(targetPath, 0o755)
		}

		content, err := embeddedPlugins.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read embedded file %s: %w", path, err)
		}
		if err := os.WriteFile(targetPath, content, 0o644); err != nil {
			return fmt.Errorf("failed to write file %s: %w", targetPath, err)
		}
		log.Printf("[Plugins] Extracted %s", relPath)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to extract plugins: %w", err)
	}
	return nil
}
