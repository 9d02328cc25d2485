// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

const testSchema = `
#Doc: {
	name:     string & != ""
	count:    int & >=0 | *1
	enabled:  bool | *true
	tags?: [...string]
	...
}

#Closed: {
	name: string
}
`

type testDoc struct {
	Name    string   `json:"name"`
	Count   int      `json:"count"`
	Enabled bool     `json:"enabled"`
	Tags    []string `json:"tags,omitempty"`
}

func TestDecode(t *testing.T) {
	t.Parallel()

	schema := MustCompile([]byte(testSchema), "#Doc")

	tests := []struct {
		name    string
		data    string
		want    testDoc
		wantErr string
	}{
		{
			name: "json document with defaults",
			data: `{"name": "demo"}`,
			want: testDoc{Name: "demo", Count: 1, Enabled: true},
		},
		{
			name: "cue document",
			data: "name: \"demo\"\ncount: 3\nenabled: false\ntags: [\"a\"]\n",
			want: testDoc{Name: "demo", Count: 3, Enabled: false, Tags: []string{"a"}},
		},
		{
			name: "unknown fields are allowed",
			data: `{"name": "demo", "extra": {"x": 1}}`,
			want: testDoc{Name: "demo", Count: 1, Enabled: true},
		},
		{
			name:    "missing required field",
			data:    `{"count": 2}`,
			wantErr: "name",
		},
		{
			name:    "wrong type",
			data:    `{"name": "demo", "enabled": "yes"}`,
			wantErr: "enabled",
		},
		{
			name:    "constraint violation",
			data:    `{"name": "demo", "count": -1}`,
			wantErr: "count",
		},
		{
			name:    "syntax error",
			data:    `{"name": `,
			wantErr: "doc.json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Decode[testDoc](schema, []byte(tt.data), WithFilename("doc.json"))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Decode() = %+v, want error", got)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %q does not mention %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() failed: %v", err)
			}
			if got.Name != tt.want.Name || got.Count != tt.want.Count || got.Enabled != tt.want.Enabled {
				t.Errorf("Decode() = %+v, want %+v", *got, tt.want)
			}
			if len(got.Tags) != len(tt.want.Tags) {
				t.Errorf("tags = %v, want %v", got.Tags, tt.want.Tags)
			}
		})
	}
}

func TestValidate_ClosedDefinition(t *testing.T) {
	t.Parallel()

	schema := MustCompile([]byte(testSchema), "#Closed")
	if err := schema.Validate([]byte(`{"name": "x"}`)); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
	err := schema.Validate([]byte(`{"name": "x", "other": 1}`), WithFilename("c.json"))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}
	if verr.Filename != "c.json" {
		t.Errorf("Filename = %q", verr.Filename)
	}
}

func TestValidate_NonConcrete(t *testing.T) {
	t.Parallel()

	schema := MustCompile([]byte(`#Partial: {name: string, count?: int}`), "#Partial")
	if err := schema.Validate([]byte(`{}`)); err == nil {
		t.Error("Validate() expected error for missing concrete name")
	}
	if err := schema.Validate([]byte(`{}`), WithConcrete(false)); err != nil {
		t.Errorf("Validate(WithConcrete(false)) failed: %v", err)
	}
}

func TestValidate_FileSize(t *testing.T) {
	t.Parallel()

	schema := MustCompile([]byte(testSchema), "#Doc")
	err := schema.Validate([]byte(`{"name": "demo"}`), WithMaxFileSize(4), WithFilename("big.json"))
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("Validate() error = %v, want size error", err)
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	schema := MustCompile([]byte(`#D: {title: string | *"untitled", on: bool | *false}`), "#D")
	type d struct {
		Title string `json:"title"`
		On    bool   `json:"on"`
	}
	got, err := Defaults[d](schema)
	if err != nil {
		t.Fatalf("Defaults() failed: %v", err)
	}
	if got.Title != "untitled" || got.On {
		t.Errorf("Defaults() = %+v", *got)
	}
}

func TestCompile_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Compile([]byte(`#A: {`), "#A"); err == nil {
		t.Error("Compile() expected error for invalid source")
	}
	if _, err := Compile([]byte(`#A: {}`), "#B"); err == nil {
		t.Error("Compile() expected error for missing definition")
	}
}

func TestSchema_ConcurrentUse(t *testing.T) {
	t.Parallel()

	schema := MustCompile([]byte(testSchema), "#Doc")
	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			if _, err := Decode[testDoc](schema, []byte(`{"name": "x"}`)); err != nil {
				t.Errorf("Decode() failed: %v", err)
			}
		})
	}
	wg.Wait()
}

func TestFormatPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path []string
		want string
	}{
		{nil, ""},
		{[]string{"name"}, "name"},
		{[]string{"layout", "extensions", "py"}, "layout.extensions.py"},
		{[]string{"layout", "bookkeeping", "1"}, "layout.bookkeeping[1]"},
		{[]string{"a", "0", "b", "12"}, "a[0].b[12]"},
		{[]string{"0"}, "0"},
	}
	for _, tt := range tests {
		if got := FormatPath(tt.path); got != tt.want {
			t.Errorf("FormatPath(%v) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestFormatError(t *testing.T) {
	t.Parallel()

	if FormatError(nil, "x") != nil {
		t.Error("FormatError(nil) should be nil")
	}

	plain := errors.New("boom")
	err := FormatError(plain, "file.cue")
	if !errors.Is(err, plain) {
		t.Error("non-CUE errors must stay wrapped")
	}
	if !strings.HasPrefix(err.Error(), "file.cue: ") {
		t.Errorf("error = %q", err)
	}

	verr := &ValidationError{Filename: "f.cue", Issues: []Issue{{Path: "a.b", Message: "bad"}, {Message: "worse"}}}
	want := "f.cue: validation failed:\n  a.b: bad\n  worse"
	if verr.Error() != want {
		t.Errorf("Error() = %q, want %q", verr.Error(), want)
	}
}
