// SPDX-License-Identifier: MPL-2.0

// Package workspace removes generator bookkeeping and intermediate artifacts
// from a build directory. Removing something that is already gone is not an
// error.
package workspace
