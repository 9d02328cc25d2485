// SPDX-License-Identifier: MPL-2.0

package resource

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Descriptor field names.
const (
	FieldScope       = "scope"
	FieldVersion     = "version"
	FieldRestricted  = "restricted"
	FieldOverridable = "overridable"
	FieldFiles       = "files"
	FieldAttributes  = "attributes"

	AttrLastModification          = "lastModification"
	AttrLastModificationSignature = "lastModificationSignature"
	AttrHintScope                 = "hintScope"

	lastModificationActor     = "actor"
	lastModificationTimestamp = "timestamp"
)

const (
	// ScopeNone marks a resource that is not loaded anywhere.
	ScopeNone Scope = "N"
	// ScopeGateway marks a gateway-scoped resource.
	ScopeGateway Scope = "G"
	// ScopeDesigner marks a designer-scoped resource.
	ScopeDesigner Scope = "D"
	// ScopeClient marks a client-scoped resource.
	ScopeClient Scope = "C"
	// ScopeAll marks a resource loaded in every scope.
	ScopeAll Scope = "A"
)

var (
	// ErrMalformedDescriptor is returned when descriptor content cannot be used as a base document.
	ErrMalformedDescriptor = errors.New("malformed resource descriptor")
	// ErrInvalidDescriptorField is returned alongside ErrMalformedDescriptor when the
	// document is a JSON object but a known field has the wrong type or value.
	ErrInvalidDescriptorField = errors.New("invalid descriptor field")
)

type (
	// Scope is the single-letter application scope code of a resource.
	Scope string

	// Descriptor is a resource's structured metadata document. Fields the
	// package does not know about are kept verbatim so that signing never
	// drops structural metadata written upstream.
	Descriptor struct {
		fields map[string]any
	}
)

// Valid reports whether s is a known scope code.
func (s Scope) Valid() bool {
	switch s {
	case ScopeNone, ScopeGateway, ScopeDesigner, ScopeClient, ScopeAll:
		return true
	default:
		return false
	}
}

// NewDescriptor returns an empty descriptor.
func NewDescriptor() *Descriptor {
	return &Descriptor{fields: make(map[string]any)}
}

// ParseDescriptor decodes a JSON descriptor. Numbers are kept as json.Number
// so re-encoding does not change their representation.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDescriptor, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: document is null", ErrMalformedDescriptor)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after document", ErrMalformedDescriptor)
	}

	d := &Descriptor{fields: fields}
	if err := d.check(); err != nil {
		return nil, err
	}
	return d, nil
}

// check validates the types of the known fields.
func (d *Descriptor) check() error {
	if raw, ok := d.fields[FieldScope]; ok {
		s, isStr := raw.(string)
		if !isStr || !Scope(s).Valid() {
			return fieldError("scope %v is not one of N, G, D, C, A", raw)
		}
	}
	for _, key := range []string{FieldRestricted, FieldOverridable} {
		if raw, ok := d.fields[key]; ok {
			if _, isBool := raw.(bool); !isBool {
				return fieldError("%s must be a boolean", key)
			}
		}
	}
	if raw, ok := d.fields[FieldAttributes]; ok {
		if _, isObj := raw.(map[string]any); !isObj {
			return fieldError("attributes must be an object")
		}
	}
	if raw, ok := d.fields[FieldFiles]; ok {
		list, isList := raw.([]any)
		if !isList {
			return fieldError("files must be a list")
		}
		for _, item := range list {
			name, isStr := item.(string)
			if !isStr {
				return fieldError("files must contain only names")
			}
			if err := checkFileName(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkFileName rejects files entries that are not plain names inside the
// resource directory.
func checkFileName(name string) error {
	if !filepath.IsLocal(name) || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return fieldError("files entry %q is not a file name inside the resource", name)
	}
	return nil
}

func fieldError(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrMalformedDescriptor, ErrInvalidDescriptorField, fmt.Sprintf(format, args...))
}

// Get returns a top-level field.
func (d *Descriptor) Get(key string) (any, bool) {
	v, ok := d.fields[key]
	return v, ok
}

// Set sets a top-level field.
func (d *Descriptor) Set(key string, value any) {
	d.fields[key] = value
}

// Scope returns the scope code, or "" when unset.
func (d *Descriptor) Scope() Scope {
	s, _ := d.fields[FieldScope].(string)
	return Scope(s)
}

// Restricted returns the restricted flag.
func (d *Descriptor) Restricted() bool {
	b, _ := d.fields[FieldRestricted].(bool)
	return b
}

// Overridable returns the overridable flag.
func (d *Descriptor) Overridable() bool {
	b, _ := d.fields[FieldOverridable].(bool)
	return b
}

// Files returns the listed resource files, or nil when the field is absent.
func (d *Descriptor) Files() []string {
	list, ok := d.fields[FieldFiles].([]any)
	if !ok {
		return nil
	}
	files := make([]string, 0, len(list))
	for _, item := range list {
		if s, isStr := item.(string); isStr {
			files = append(files, s)
		}
	}
	return files
}

// SetFiles replaces the files list.
func (d *Descriptor) SetFiles(files []string) {
	list := make([]any, len(files))
	for i, f := range files {
		list[i] = f
	}
	d.fields[FieldFiles] = list
}

// Attribute returns an entry of the attributes object.
func (d *Descriptor) Attribute(key string) (any, bool) {
	v, ok := d.attributes()[key]
	return v, ok
}

// SetAttribute sets an entry of the attributes object, creating it if needed.
func (d *Descriptor) SetAttribute(key string, value any) {
	attrs, ok := d.fields[FieldAttributes].(map[string]any)
	if !ok {
		attrs = make(map[string]any)
		d.fields[FieldAttributes] = attrs
	}
	attrs[key] = value
}

func (d *Descriptor) attributes() map[string]any {
	attrs, _ := d.fields[FieldAttributes].(map[string]any)
	return attrs
}

// HintScope returns the hint-scope depth, if set.
func (d *Descriptor) HintScope() (int, bool) {
	raw, ok := d.Attribute(AttrHintScope)
	if !ok {
		return 0, false
	}
	return toInt(raw)
}

// LastModificationActor returns the actor that last signed the resource.
func (d *Descriptor) LastModificationActor() string {
	mod, _ := d.attributes()[AttrLastModification].(map[string]any)
	actor, _ := mod[lastModificationActor].(string)
	return actor
}

// LastModificationTime returns the signing timestamp, if present and parseable.
func (d *Descriptor) LastModificationTime() (time.Time, bool) {
	mod, _ := d.attributes()[AttrLastModification].(map[string]any)
	raw, _ := mod[lastModificationTimestamp].(string)
	if raw == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Signature returns the last modification signature, or "".
func (d *Descriptor) Signature() string {
	sig, _ := d.attributes()[AttrLastModificationSignature].(string)
	return sig
}

// Clone returns a deep copy.
func (d *Descriptor) Clone() *Descriptor {
	return &Descriptor{fields: cloneMap(d.fields)}
}

// Keys returns the top-level field names in sorted order.
func (d *Descriptor) Keys() []string {
	keys := make([]string, 0, len(d.fields))
	for k := range d.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON encodes the descriptor with sorted keys.
func (d *Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.fields)
}

// Encode renders the descriptor the way it is written to disk: two-space
// indentation and a trailing newline.
func (d *Descriptor) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d.fields); err != nil {
		return nil, fmt.Errorf("failed to encode descriptor: %w", err)
	}
	return buf.Bytes(), nil
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), n == float64(int(n))
	case json.Number:
		i, err := strconv.Atoi(n.String())
		return i, err == nil
	default:
		return 0, false
	}
}
