// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Schema is a compiled CUE definition that documents are unified with.
// It is safe for concurrent use.
type Schema struct {
	mu   sync.Mutex
	ctx  *cue.Context
	root cue.Value
	path string
}

// Compile compiles schema source and selects the definition at path
// (for example "#Manifest").
func Compile(source []byte, path string) (*Schema, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(source, cue.Filename("schema.cue"))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	root := value.LookupPath(cue.ParsePath(path))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("schema definition %s not found: %w", path, err)
	}
	return &Schema{ctx: ctx, root: root, path: path}, nil
}

// MustCompile is Compile for embedded schemas, which are known to be valid.
func MustCompile(source []byte, path string) *Schema {
	s, err := Compile(source, path)
	if err != nil {
		panic(err)
	}
	return s
}

// Path returns the definition path the schema validates against.
func (s *Schema) Path() string {
	return s.path
}

// Unify compiles data and unifies it with the schema definition. The result
// is validated; defaults declared in the schema are applied.
func (s *Schema) Unify(data []byte, opts ...Option) (cue.Value, error) {
	o := newOptions(opts)
	if err := CheckFileSize(data, o.maxFileSize, o.filename); err != nil {
		return cue.Value{}, err
	}

	// cue.Context is not safe for concurrent compilation.
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.ctx.CompileBytes(data, cue.Filename(o.filename))
	if err := doc.Err(); err != nil {
		return cue.Value{}, FormatError(err, o.filename)
	}

	unified := s.root.Unify(doc)
	validateOpts := []cue.Option{}
	if o.concrete {
		validateOpts = append(validateOpts, cue.Concrete(true))
	}
	if err := unified.Validate(validateOpts...); err != nil {
		return cue.Value{}, FormatError(err, o.filename)
	}
	return unified, nil
}

// Validate reports whether data satisfies the schema.
func (s *Schema) Validate(data []byte, opts ...Option) error {
	_, err := s.Unify(data, opts...)
	return err
}

// Decode validates data against schema and decodes the unified value,
// defaults included, into a T.
func Decode[T any](s *Schema, data []byte, opts ...Option) (*T, error) {
	unified, err := s.Unify(data, opts...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out T
	if err := unified.Decode(&out); err != nil {
		return nil, FormatError(err, newOptions(opts).filename)
	}
	return &out, nil
}

// Defaults returns the schema definition with every default applied,
// decoded into a T. It fails if the definition has required fields.
func Defaults[T any](s *Schema) (*T, error) {
	return Decode[T](s, []byte("{}"), WithFilename("<defaults>"))
}
