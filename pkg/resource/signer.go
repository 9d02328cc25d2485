// SPDX-License-Identifier: MPL-2.0

package resource

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	// DefaultHintScope is the ancestor search depth stamped when a descriptor carries none.
	DefaultHintScope = 2
	// descriptorVersion is stamped when a descriptor carries no version.
	descriptorVersion = 1
)

// ErrSignatureMismatch is returned by Verify when a resource no longer matches its signature.
var ErrSignatureMismatch = errors.New("resource signature mismatch")

type (
	// Signer stamps provenance onto resource descriptors. One Signer is built
	// per run so every resource carries the same actor and timestamp. A Signer
	// is immutable after construction and safe for concurrent use.
	Signer struct {
		actor          string
		timestamp      time.Time
		descriptorName string
		hintScope      int
		strict         bool
	}

	// SignerOption configures a Signer.
	SignerOption func(*Signer)

	// SignResult is the outcome of signing one resource directory.
	SignResult struct {
		// Dir is the resource directory.
		Dir string
		// Descriptor is the merged, signed descriptor.
		Descriptor *Descriptor
		// Bytes is the encoded descriptor as written to disk.
		Bytes []byte
		// Recovered is set when the existing descriptor was missing or not a
		// JSON object and signing started from an empty document. A JSON
		// object with an invalid known field is always an error.
		Recovered bool
		// Cause holds the parse error that triggered recovery, if any.
		Cause error
	}
)

// WithDescriptorName sets the descriptor file name (default resource.json).
func WithDescriptorName(name string) SignerOption {
	return func(s *Signer) {
		s.descriptorName = name
	}
}

// WithHintScope sets the hint scope stamped on descriptors that carry none.
func WithHintScope(depth int) SignerOption {
	return func(s *Signer) {
		s.hintScope = depth
	}
}

// WithStrict makes an unparseable descriptor a signing error instead of
// starting from an empty document.
func WithStrict(strict bool) SignerOption {
	return func(s *Signer) {
		s.strict = strict
	}
}

// NewSigner creates a Signer for actor. The timestamp is converted to UTC and
// truncated to whole seconds.
func NewSigner(actor string, timestamp time.Time, opts ...SignerOption) *Signer {
	s := &Signer{
		actor:          actor,
		timestamp:      timestamp.UTC().Truncate(time.Second),
		descriptorName: DefaultDescriptorName,
		hintScope:      DefaultHintScope,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Actor returns the signing actor.
func (s *Signer) Actor() string {
	return s.actor
}

// Timestamp returns the signing timestamp.
func (s *Signer) Timestamp() time.Time {
	return s.timestamp
}

// Render computes the signed descriptor for dir without writing it.
func (s *Signer) Render(dir string) (*SignResult, error) {
	result := &SignResult{Dir: dir}

	descPath := filepath.Join(dir, s.descriptorName)
	data, err := os.ReadFile(descPath)
	var desc *Descriptor
	switch {
	case errors.Is(err, os.ErrNotExist):
		desc = NewDescriptor()
		result.Recovered = true
	case err != nil:
		return nil, fmt.Errorf("failed to read descriptor %s: %w", descPath, err)
	default:
		desc, err = ParseDescriptor(data)
		if err != nil {
			if s.strict || errors.Is(err, ErrInvalidDescriptorField) {
				return nil, fmt.Errorf("%s: %w", descPath, err)
			}
			desc = NewDescriptor()
			result.Recovered = true
			result.Cause = err
		}
	}

	if _, ok := desc.Get(FieldVersion); !ok {
		desc.Set(FieldVersion, descriptorVersion)
	}
	if desc.Files() == nil {
		files, listErr := listResourceFiles(dir, s.descriptorName)
		if listErr != nil {
			return nil, listErr
		}
		desc.SetFiles(files)
	}
	if _, ok := desc.HintScope(); !ok {
		desc.SetAttribute(AttrHintScope, s.hintScope)
	}
	desc.SetAttribute(AttrLastModification, map[string]any{
		lastModificationActor:     s.actor,
		lastModificationTimestamp: s.timestamp.Format(time.RFC3339),
	})

	sig, err := Signature(desc, dir)
	if err != nil {
		return nil, err
	}
	desc.SetAttribute(AttrLastModificationSignature, sig)

	encoded, err := desc.Encode()
	if err != nil {
		return nil, err
	}
	result.Descriptor = desc
	result.Bytes = encoded
	return result, nil
}

// Sign merges provenance into dir's descriptor and rewrites the descriptor file.
// No other file in dir is touched.
func (s *Signer) Sign(dir string) (*SignResult, error) {
	result, err := s.Render(dir)
	if err != nil {
		return nil, err
	}
	descPath := filepath.Join(dir, s.descriptorName)
	if err := os.WriteFile(descPath, result.Bytes, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write descriptor %s: %w", descPath, err)
	}
	return result, nil
}

// Signature computes the lowercase hex SHA-256 over the descriptor without its
// signature attribute, followed by the name and content of every listed file
// in sorted order.
func Signature(desc *Descriptor, dir string) (string, error) {
	unsigned := desc.Clone()
	if attrs := unsigned.attributes(); attrs != nil {
		delete(attrs, AttrLastModificationSignature)
	}
	canonical, err := json.Marshal(unsigned)
	if err != nil {
		return "", fmt.Errorf("failed to encode descriptor for signing: %w", err)
	}

	h := sha256.New()
	h.Write(canonical)

	files := desc.Files()
	sort.Strings(files)
	for _, name := range files {
		if err := checkFileName(name); err != nil {
			return "", err
		}
		data, readErr := os.ReadFile(filepath.Join(dir, name))
		if readErr != nil {
			return "", fmt.Errorf("failed to read resource file %s: %w", name, readErr)
		}
		h.Write([]byte(name))
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks that the descriptor in dir carries a signature matching the
// current descriptor and file contents.
func Verify(dir, descriptorName string) error {
	descPath := filepath.Join(dir, descriptorName)
	data, err := os.ReadFile(descPath)
	if err != nil {
		return fmt.Errorf("failed to read descriptor %s: %w", descPath, err)
	}
	desc, err := ParseDescriptor(data)
	if err != nil {
		return fmt.Errorf("%s: %w", descPath, err)
	}
	want := desc.Signature()
	if want == "" {
		return fmt.Errorf("%w: %s is not signed", ErrSignatureMismatch, dir)
	}
	got, err := Signature(desc, dir)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: %s", ErrSignatureMismatch, dir)
	}
	return nil
}

// listResourceFiles returns the regular, non-hidden files of dir except the descriptor.
func listResourceFiles(dir, descriptorName string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list resource %s: %w", dir, err)
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || isHidden(name) || name == descriptorName {
			continue
		}
		files = append(files, name)
	}
	return files, nil
}
