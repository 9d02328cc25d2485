// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and a catalog of markdown
// explanations the CLI renders when a build fails.
package issue
