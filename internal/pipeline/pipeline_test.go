// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/respack/respack/internal/config"
	"github.com/respack/respack/internal/issue"
	"github.com/respack/respack/internal/testutil"
	"github.com/respack/respack/pkg/archive"
	"github.com/respack/respack/pkg/manifest"
	"github.com/respack/respack/pkg/resource"

	"github.com/charmbracelet/log"
)

var buildTime = time.Date(2024, 3, 9, 14, 30, 15, 250_000_000, time.UTC)

// ============================================================================
// Helpers
// ============================================================================

// demoConfig uses a layout unlike the defaults so nothing passes by accident.
func demoConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Actor = "ci"
	cfg.Layout.BundleDir = "bundle"
	cfg.Layout.ResourceRoot = ""
	cfg.Layout.ManifestFile = "manifest.json"
	cfg.Layout.DescriptorFile = "resource.meta"
	cfg.Layout.Extensions = map[string]string{"body": "code", "meta": "resource.meta"}
	cfg.Archive.PinTimestamps = true
	return cfg
}

func demoTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, "bundle", "models", "Pet.body"), "class Pet: pass\n")
	testutil.MustWriteFile(t, filepath.Join(dir, "bundle", "models", "Pet.meta"), `{"scope": "G", "custom": 7}`)
	testutil.MustWriteFile(t, filepath.Join(dir, "docs", "index.html"), "<h1>Demo</h1>")
	testutil.MustWriteFile(t, filepath.Join(dir, "manifest.json"), `{"title":"Demo"}`)
	return dir
}

func run(t *testing.T, dir string, cfg *config.Config) (*Result, *testutil.FakeClock, error) {
	t.Helper()
	clock := testutil.NewFakeClock(buildTime)
	res, err := Run(context.Background(), Options{WorkDir: dir, Config: cfg, Clock: clock})
	return res, clock, err
}

func topLevel(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

func assertIssue(t *testing.T, err error, want issue.Id) {
	t.Helper()
	if err == nil {
		t.Fatal("Run() expected error")
	}
	got, ok := issue.IssueOf(err)
	if !ok || got != want {
		t.Errorf("issue = %v (found %v), want %v; err = %v", got, ok, want, err)
	}
}

// ============================================================================
// Run
// ============================================================================

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	dir := demoTree(t)
	res, clock, err := run(t, dir, demoConfig())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if got := topLevel(t, dir); !reflect.DeepEqual(got, []string{"docs.zip", "project.zip"}) {
		t.Errorf("work dir contents = %v, want only the two archives", got)
	}
	if clock.Calls() != 1 {
		t.Errorf("clock read %d times, want once", clock.Calls())
	}
	wantTS := buildTime.Truncate(time.Second)
	if !res.Timestamp.Equal(wantTS) {
		t.Errorf("Timestamp = %v, want %v", res.Timestamp, wantTS)
	}
	if !reflect.DeepEqual(res.Resources, []string{"bundle/models/Pet"}) {
		t.Errorf("Resources = %v", res.Resources)
	}
	if res.ManifestCreated {
		t.Error("existing manifest reported as created")
	}

	project := filepath.Join(dir, "project.zip")
	entries, err := archive.List(project)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	want := []string{
		"bundle/",
		"bundle/models/",
		"bundle/models/Pet/",
		"bundle/models/Pet/code",
		"bundle/models/Pet/resource.meta",
		"manifest.json",
	}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("project entries = %v\nwant             %v", names, want)
	}

	data, err := archive.ReadEntry(project, "manifest.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"title":"Demo"}` {
		t.Errorf("manifest entry = %q, want the file byte-for-byte", data)
	}

	extracted := t.TempDir()
	if _, err := archive.Extract(project, extracted); err != nil {
		t.Fatal(err)
	}
	petDir := filepath.Join(extracted, "bundle", "models", "Pet")
	if got := testutil.MustReadFile(t, filepath.Join(petDir, "code")); got != "class Pet: pass\n" {
		t.Errorf("code = %q", got)
	}
	desc, err := resource.ParseDescriptor([]byte(testutil.MustReadFile(t, filepath.Join(petDir, "resource.meta"))))
	if err != nil {
		t.Fatal(err)
	}
	if desc.LastModificationActor() != "ci" {
		t.Errorf("actor = %q, want ci", desc.LastModificationActor())
	}
	if ts, ok := desc.LastModificationTime(); !ok || !ts.Equal(wantTS) {
		t.Errorf("timestamp = %v (%v), want %v", ts, ok, wantTS)
	}
	if v, _ := desc.Get("custom"); v != json.Number("7") {
		t.Errorf("custom field = %v, want it kept", v)
	}
	if err := resource.Verify(petDir, "resource.meta"); err != nil {
		t.Errorf("Verify() failed: %v", err)
	}

	docs, err := archive.ReadEntry(filepath.Join(dir, "docs.zip"), "docs/index.html")
	if err != nil {
		t.Fatal(err)
	}
	if string(docs) != "<h1>Demo</h1>" {
		t.Errorf("docs entry = %q", docs)
	}
}

func TestRun_RemovesBookkeeping(t *testing.T) {
	t.Parallel()

	dir := demoTree(t)
	testutil.MustWriteFile(t, filepath.Join(dir, ".openapi-generator-ignore"), "*.md\n")
	testutil.MustWriteFile(t, filepath.Join(dir, ".openapi-generator", "VERSION"), "7.0.0")
	testutil.MustWriteFile(t, filepath.Join(dir, "test", "test_pet.py"), "def test(): pass\n")

	res, _, err := run(t, dir, demoConfig())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if got := topLevel(t, dir); !reflect.DeepEqual(got, []string{"docs.zip", "project.zip"}) {
		t.Errorf("work dir contents = %v", got)
	}
	for _, p := range []string{".openapi-generator", ".openapi-generator-ignore", "test", "docs", "manifest.json", "bundle"} {
		found := false
		for _, r := range res.Removed {
			if r == p {
				found = true
			}
		}
		if !found {
			t.Errorf("Removed = %v, missing %s", res.Removed, p)
		}
	}
}

func TestRun_RendersManifest(t *testing.T) {
	t.Parallel()

	dir := demoTree(t)
	if err := os.Remove(filepath.Join(dir, "manifest.json")); err != nil {
		t.Fatal(err)
	}
	cfg := demoConfig()
	cfg.PackageName = "petstore_client"
	cfg.Manifest.Description = "Pet store"

	res, _, err := run(t, dir, cfg)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if !res.ManifestCreated {
		t.Error("ManifestCreated = false")
	}

	data, err := archive.ReadEntry(filepath.Join(dir, "project.zip"), "manifest.json")
	if err != nil {
		t.Fatal(err)
	}
	m, err := manifest.Parse(data, "manifest.json")
	if err != nil {
		t.Fatal(err)
	}
	if m.Title != "petstore-client" || m.Description != "Pet store" || !m.Enabled {
		t.Errorf("manifest = %+v", m)
	}
}

func TestRun_MissingDocsStillArchived(t *testing.T) {
	t.Parallel()

	dir := demoTree(t)
	if err := os.RemoveAll(filepath.Join(dir, "docs")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := run(t, dir, demoConfig()); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	entries, err := archive.List(filepath.Join(dir, "docs.zip"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "docs/" {
		t.Errorf("docs entries = %v", entries)
	}
}

func TestRun_PinnedTimestampsAreReproducible(t *testing.T) {
	t.Parallel()

	var archives [][]byte
	for range 2 {
		dir := demoTree(t)
		if _, _, err := run(t, dir, demoConfig()); err != nil {
			t.Fatal(err)
		}
		archives = append(archives, []byte(testutil.MustReadFile(t, filepath.Join(dir, "project.zip"))))
	}
	if !bytes.Equal(archives[0], archives[1]) {
		t.Error("two builds of the same tree produced different project archives")
	}
}

func TestRun_UnexpectedArtifactLeavesTreeUntouched(t *testing.T) {
	t.Parallel()

	dir := demoTree(t)
	testutil.MustWriteFile(t, filepath.Join(dir, "bundle", "models", "README.md"), "# models")
	bundle := filepath.Join(dir, "bundle")
	before := testutil.Snapshot(t, bundle)

	_, _, err := run(t, dir, demoConfig())
	assertIssue(t, err, issue.UnexpectedArtifactId)
	if !errors.Is(err, resource.ErrUnexpectedExtension) {
		t.Errorf("error = %v, want ErrUnexpectedExtension in chain", err)
	}
	if !strings.Contains(err.Error(), "README.md") {
		t.Errorf("error %q does not name the offending file", err)
	}
	var ae *issue.ActionableError
	if !errors.As(err, &ae) || len(ae.Suggestions) != 2 {
		t.Errorf("error should carry both remediation hints: %#v", ae)
	}
	if after := testutil.Snapshot(t, bundle); !reflect.DeepEqual(after, before) {
		t.Errorf("bundle changed:\nbefore %v\nafter  %v", before, after)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "project.zip")); !os.IsNotExist(statErr) {
		t.Error("project archive written after a failed conversion")
	}
}

func TestRun_InvalidConfigTouchesNothing(t *testing.T) {
	t.Parallel()

	dir := demoTree(t)
	before := testutil.Snapshot(t, dir)
	cfg := demoConfig()
	cfg.RecursionLimit = "ten"

	clock := testutil.NewFakeClock(buildTime)
	_, err := Run(context.Background(), Options{WorkDir: dir, Config: cfg, Clock: clock})
	assertIssue(t, err, issue.ConfigInvalidId)
	if !errors.Is(err, config.ErrInvalidRecursionLimit) {
		t.Errorf("error = %v, want ErrInvalidRecursionLimit in chain", err)
	}
	if clock.Calls() != 0 {
		t.Error("clock read before configuration was validated")
	}
	if after := testutil.Snapshot(t, dir); !reflect.DeepEqual(after, before) {
		t.Error("work dir changed after a configuration error")
	}
}

func TestRun_MissingResourceRoot(t *testing.T) {
	t.Parallel()

	_, _, err := run(t, t.TempDir(), demoConfig())
	assertIssue(t, err, issue.WorkDirNotFoundId)
}

func TestRun_StrictSigning(t *testing.T) {
	t.Parallel()

	t.Run("lenient recovers", func(t *testing.T) {
		t.Parallel()
		dir := demoTree(t)
		testutil.MustWriteFile(t, filepath.Join(dir, "bundle", "models", "Pet.meta"), "{not json")

		res, _, err := run(t, dir, demoConfig())
		if err != nil {
			t.Fatalf("Run() failed: %v", err)
		}
		if !reflect.DeepEqual(res.Recovered, []string{"bundle/models/Pet"}) {
			t.Errorf("Recovered = %v", res.Recovered)
		}
	})

	t.Run("invalid field fails even when lenient", func(t *testing.T) {
		t.Parallel()
		dir := demoTree(t)
		testutil.MustWriteFile(t, filepath.Join(dir, "bundle", "models", "Pet.meta"), `{"scope":"X","restricted":true}`)

		_, _, err := run(t, dir, demoConfig())
		assertIssue(t, err, issue.DescriptorMalformedId)
		if !errors.Is(err, resource.ErrInvalidDescriptorField) {
			t.Errorf("error = %v, want ErrInvalidDescriptorField in chain", err)
		}
	})

	t.Run("strict fails", func(t *testing.T) {
		t.Parallel()
		dir := demoTree(t)
		testutil.MustWriteFile(t, filepath.Join(dir, "bundle", "models", "Pet.meta"), "{not json")
		cfg := demoConfig()
		cfg.Signing.Strict = true

		_, _, err := run(t, dir, cfg)
		assertIssue(t, err, issue.DescriptorMalformedId)
		if !errors.Is(err, resource.ErrMalformedDescriptor) {
			t.Errorf("error = %v, want ErrMalformedDescriptor in chain", err)
		}
	})
}

func TestRun_Canceled(t *testing.T) {
	t.Parallel()

	dir := demoTree(t)
	before := testutil.Snapshot(t, dir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Options{WorkDir: dir, Config: demoConfig(), Clock: testutil.NewFakeClock(buildTime)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if after := testutil.Snapshot(t, dir); !reflect.DeepEqual(after, before) {
		t.Error("work dir changed after cancellation")
	}
}

func TestRun_Logs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	_, err := Run(context.Background(), Options{
		WorkDir: demoTree(t),
		Config:  demoConfig(),
		Clock:   testutil.NewFakeClock(buildTime),
		Logger:  logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"converted resources", "signed resources", "wrote archive", "build complete"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log output missing %q:\n%s", want, buf.String())
		}
	}
}
