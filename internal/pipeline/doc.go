// SPDX-License-Identifier: MPL-2.0

// Package pipeline runs the post-processing of one generated tree: flat files
// become signed resource directories, the documentation and bundle trees
// become archives, the project manifest is injected at the project archive
// root and everything folded into an archive is removed.
//
// A run owns its working directory exclusively and stops at the first error.
// Steps that already completed are not rolled back.
package pipeline
