// Package archive moves a previous output directory aside before a new run.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/snonux/wordaudio/internal/logger"
)

// ArchiveOutput moves outputDir to archive/<name>-<timestamp> next to it and
// returns the new location
func ArchiveOutput(outputDir string) (string, error) {
	info, err := os.Stat(outputDir)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("output directory does not exist: %s", outputDir)
	}
	if err != nil {
		return "", fmt.Errorf("failed to inspect output directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("output path is not a directory: %s", outputDir)
	}

	// Get parent directory and create archive path
	cleaned := filepath.Clean(outputDir)
	archiveDir := filepath.Join(filepath.Dir(cleaned), "archive")
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	base := filepath.Base(cleaned)
	timestamp := time.Now().Format("20060102-150405")
	archivePath := filepath.Join(archiveDir, fmt.Sprintf("%s-%s", base, timestamp))

	// Several archives within one second get a counter
	for i := 1; ; i++ {
		if _, err := os.Stat(archivePath); os.IsNotExist(err) {
			break
		}
		archivePath = filepath.Join(archiveDir, fmt.Sprintf("%s-%s-%d", base, timestamp, i))
	}

	if err := os.Rename(cleaned, archivePath); err != nil {
		return "", fmt.Errorf("failed to archive output directory: %w", err)
	}

	logger.Info("Output directory archived", "from", cleaned, "to", archivePath)
	return archivePath, nil
}
