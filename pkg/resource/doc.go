// SPDX-License-Identifier: MPL-2.0

// Package resource rehouses a flat generated tree into the directory-per-resource
// layout expected by the target runtime and signs each resource's descriptor.
//
// A flat tree pairs files by basename:
//
//	models/Pet.py
//	models/Pet.json
//
// After [Convert] each pair lives in a resource directory named after the
// shared basename, under fixed target names taken from an [ExtensionTable]:
//
//	models/Pet/code.py
//	models/Pet/resource.json
//
// A [Signer] then merges provenance attributes (actor, timestamp, signature)
// into every resource descriptor without discarding the structural fields
// written by the template stage.
package resource
