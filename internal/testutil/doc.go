// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Common helpers include directory operations (MustChdir, MustMkdirAll),
// file fixtures (MustWriteFile, MustReadFile), tree comparison (Snapshot)
// and a FakeClock for the build timestamp.
package testutil
