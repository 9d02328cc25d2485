// SPDX-License-Identifier: MPL-2.0

// Package archive serializes directory trees into ZIP archives and injects
// extra root-level entries into archives that already exist.
//
//   - [Build]: write a directory tree rooted at its base name, with a marker
//     entry for every directory (empty ones included) and hidden files skipped
//   - [Append]: add one entry to an existing archive without recompressing the
//     entries already in it; the archive is replaced atomically
//   - [List] and [Extract]: read an archive back for inspection and round trips
package archive
