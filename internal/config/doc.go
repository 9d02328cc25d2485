// SPDX-License-Identifier: MPL-2.0

// Package config loads respack build properties using Viper with CUE as the
// file format.
//
// A build reads, in order of increasing precedence: built-in defaults, the
// first config file found (an explicit path, ./respack.cue, then
// $XDG_CONFIG_HOME/respack/config.cue), RESPACK_* environment variables and
// finally command-line overrides. Files are validated against the embedded
// config_schema.cue before they are merged.
package config
