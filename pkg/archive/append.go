// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrEntryExists is returned by Append when the archive already holds the entry name.
	ErrEntryExists = errors.New("archive entry already exists")
	// ErrInvalidEntryName is returned for entry names that are empty or escape the archive root.
	ErrInvalidEntryName = errors.New("invalid archive entry name")
)

// Append adds the file at sourceFile to the archive at archivePath under
// entryName. Existing entries are copied in their compressed form and are not
// modified. The new archive is written next to the original and renamed over
// it, so a failure at any point leaves the original archive intact.
func Append(archivePath, entryName, sourceFile string, opts ...Option) (err error) {
	o := buildOptions(opts)

	name, err := cleanEntryName(entryName)
	if err != nil {
		return err
	}

	info, err := os.Stat(sourceFile)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", sourceFile, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", sourceFile)
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for _, f := range reader.File {
		if f.Name == name {
			return fmt.Errorf("%w: %s", ErrEntryExists, name)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(archivePath), "."+filepath.Base(archivePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary archive: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			// Best-effort cleanup; the original archive is untouched.
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	zw := zip.NewWriter(tmp)
	if reader.Comment != "" {
		if err = zw.SetComment(reader.Comment); err != nil {
			return fmt.Errorf("failed to copy archive comment: %w", err)
		}
	}
	for _, f := range reader.File {
		if err = zw.Copy(f); err != nil {
			return fmt.Errorf("failed to copy entry %s: %w", f.Name, err)
		}
	}
	if err = writeEntry(zw, name, sourceFile, info, o); err != nil {
		return err
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temporary archive: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary archive: %w", err)
	}
	if err = os.Rename(tmpPath, archivePath); err != nil {
		return fmt.Errorf("failed to replace archive: %w", err)
	}
	committed = true
	return nil
}

func writeEntry(zw *zip.Writer, name, sourceFile string, info os.FileInfo, o options) (err error) {
	header, err := fileHeader(info, name, o)
	if err != nil {
		return err
	}
	header.Method = o.method

	f, err := os.Open(sourceFile)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", sourceFile, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create entry %s: %w", name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("failed to write entry %s: %w", name, err)
	}
	return nil
}

// cleanEntryName normalizes an entry name to forward slashes and rejects
// names that are empty, absolute, directories or contain "..".
func cleanEntryName(name string) (string, error) {
	s := filepath.ToSlash(name)
	s = strings.TrimPrefix(s, "./")
	switch {
	case s == "" || strings.HasSuffix(s, "/"):
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryName, name)
	case strings.HasPrefix(s, "/") || (len(s) > 1 && s[1] == ':'):
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidEntryName, name)
	}
	for _, part := range strings.Split(s, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidEntryName, name)
		}
	}
	return s, nil
}
