// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// FixedTime is the entry timestamp used when timestamps are pinned (1980-01-01 UTC,
// the earliest time a ZIP header can hold).
var FixedTime = time.Unix(315532800, 0).UTC()

type (
	// Option configures archive writing.
	Option func(*options)

	options struct {
		pinTimestamps bool
		method        uint16
	}
)

// WithPinnedTimestamps stamps every entry with FixedTime so that the same tree
// always produces the same archive bytes.
func WithPinnedTimestamps(pin bool) Option {
	return func(o *options) {
		o.pinTimestamps = pin
	}
}

// WithStore disables compression for file entries.
func WithStore() Option {
	return func(o *options) {
		o.method = zip.Store
	}
}

func buildOptions(opts []Option) options {
	o := options{method: zip.Deflate}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// IsHidden reports whether a file name is hidden under the dotfile convention.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// Build writes the tree at sourceDir into a new archive at destPath. Entries
// are rooted at filepath.Base(sourceDir). Every non-hidden directory gets a
// marker entry before its children; hidden files and directories are skipped.
// Children are written in lexical order. A partially written archive is
// removed on failure.
func Build(sourceDir, destPath string, opts ...Option) (err error) {
	o := buildOptions(opts)

	absSource, err := filepath.Abs(sourceDir)
	if err != nil {
		return fmt.Errorf("failed to resolve source directory: %w", err)
	}
	info, err := os.Stat(absSource)
	if err != nil {
		return fmt.Errorf("failed to stat source directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", sourceDir)
	}

	absDest, err := filepath.Abs(destPath)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}

	out, err := os.Create(absDest)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(absDest) // Best-effort cleanup of the partial archive
		}
	}()
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	zw := zip.NewWriter(out)
	w := &treeWriter{zw: zw, opts: o, skip: absDest}
	if err = w.writeDir(absSource, filepath.Base(absSource), info); err != nil {
		_ = zw.Close()
		return fmt.Errorf("failed to archive %s: %w", sourceDir, err)
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

type treeWriter struct {
	zw   *zip.Writer
	opts options
	// skip is the archive being written, in case it lives inside the tree.
	skip string
}

func (w *treeWriter) writeDir(dir, name string, info fs.FileInfo) error {
	header, err := w.header(info, name+"/")
	if err != nil {
		return err
	}
	header.Method = zip.Store
	if _, err := w.zw.CreateHeader(header); err != nil {
		return fmt.Errorf("failed to create directory entry %s: %w", header.Name, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}
	for _, entry := range entries {
		if IsHidden(entry.Name()) {
			continue
		}
		childPath := filepath.Join(dir, entry.Name())
		if childPath == w.skip {
			continue
		}
		// Stat follows symlinks, matching what a reader of the tree would see.
		childInfo, statErr := os.Stat(childPath)
		if statErr != nil {
			return fmt.Errorf("failed to stat %s: %w", childPath, statErr)
		}
		childName := path.Join(name, entry.Name())
		if childInfo.IsDir() {
			if err := w.writeDir(childPath, childName, childInfo); err != nil {
				return err
			}
			continue
		}
		if !childInfo.Mode().IsRegular() {
			continue
		}
		if err := w.writeFile(childPath, childName, childInfo); err != nil {
			return err
		}
	}
	return nil
}

func (w *treeWriter) writeFile(src, name string, info fs.FileInfo) (err error) {
	header, err := w.header(info, name)
	if err != nil {
		return err
	}
	header.Method = w.opts.method

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	dst, err := w.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create entry %s: %w", name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("failed to write entry %s: %w", name, err)
	}
	return nil
}

func (w *treeWriter) header(info fs.FileInfo, name string) (*zip.FileHeader, error) {
	return fileHeader(info, name, w.opts)
}

func fileHeader(info fs.FileInfo, name string, o options) (*zip.FileHeader, error) {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return nil, fmt.Errorf("failed to create header for %s: %w", name, err)
	}
	header.Name = name
	if o.pinTimestamps {
		header.Modified = FixedTime
	}
	return header, nil
}
