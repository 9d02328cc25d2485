// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates user documents against embedded CUE schemas.
//
// A [Schema] is compiled once from embedded bytes and then checks any number
// of documents against one of its definitions. JSON documents are accepted
// as-is because JSON is valid CUE.
//
//	//go:embed manifest_schema.cue
//	var schemaBytes []byte
//
//	schema := cueutil.MustCompile(schemaBytes, "#Manifest")
//	m, err := cueutil.Decode[Manifest](schema, data, cueutil.WithFilename("project.json"))
//
// Validation failures are reported as [*ValidationError] values whose
// messages carry the offending field path in JSON-path form
// (layout.extensions.py).
package cueutil
