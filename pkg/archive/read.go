// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry describes one archive entry.
type Entry struct {
	Name     string    `json:"name" yaml:"name"`
	Dir      bool      `json:"dir" yaml:"dir"`
	Size     uint64    `json:"size" yaml:"size"`
	Packed   uint64    `json:"packed" yaml:"packed"`
	Modified time.Time `json:"modified" yaml:"modified"`
}

// List returns the entries of the archive at archivePath in stored order.
func List(archivePath string) (entries []Entry, err error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	entries = make([]Entry, 0, len(reader.File))
	for _, f := range reader.File {
		entries = append(entries, Entry{
			Name:     f.Name,
			Dir:      strings.HasSuffix(f.Name, "/"),
			Size:     f.UncompressedSize64,
			Packed:   f.CompressedSize64,
			Modified: f.Modified.UTC(),
		})
	}
	return entries, nil
}

// Extract writes every entry of the archive under destDir and returns the
// extracted paths. Entries that would land outside destDir are rejected.
func Extract(archivePath, destDir string) (paths []string, err error) {
	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve destination directory: %w", err)
	}
	if err = os.MkdirAll(absDest, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for _, file := range reader.File {
		destPath := filepath.Join(absDest, filepath.FromSlash(file.Name))

		relPath, relErr := filepath.Rel(absDest, destPath)
		if relErr != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("invalid path in archive: %s", file.Name)
		}

		if strings.HasSuffix(file.Name, "/") {
			if mkdirErr := os.MkdirAll(destPath, 0o755); mkdirErr != nil {
				return nil, fmt.Errorf("failed to create directory: %w", mkdirErr)
			}
			paths = append(paths, destPath)
			continue
		}

		if mkdirErr := os.MkdirAll(filepath.Dir(destPath), 0o755); mkdirErr != nil {
			return nil, fmt.Errorf("failed to create parent directory: %w", mkdirErr)
		}
		if extractErr := extractFile(file, destPath); extractErr != nil {
			return nil, fmt.Errorf("failed to extract %s: %w", file.Name, extractErr)
		}
		paths = append(paths, destPath)
	}
	return paths, nil
}

func extractFile(file *zip.File, destPath string) (err error) {
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	destFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := destFile.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	//nolint:gosec // G110: archives are produced by this tool; size limits handled by filesystem
	_, err = io.Copy(destFile, rc)
	return err
}

// ReadEntry returns the content of a single file entry.
func ReadEntry(archivePath, name string) (data []byte, err error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	rc, err := reader.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open entry %s: %w", name, err)
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return io.ReadAll(rc)
}
