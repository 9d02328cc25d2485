// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/respack/respack/internal/config"
	"github.com/respack/respack/internal/issue"
	"github.com/respack/respack/pkg/archive"
	"github.com/respack/respack/pkg/manifest"
	"github.com/respack/respack/pkg/resource"
	"github.com/respack/respack/pkg/workspace"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

type (
	// Clock supplies the build timestamp. It is read exactly once per run.
	Clock interface {
		Now() time.Time
	}

	// SystemClock reads the wall clock.
	SystemClock struct{}

	// Options configures a run.
	Options struct {
		// WorkDir is the generator output directory; empty means ".".
		WorkDir string
		// Config holds the build properties; nil means config.DefaultConfig().
		Config *config.Config
		// Clock defaults to SystemClock.
		Clock Clock
		// Logger defaults to a discarding logger.
		Logger *log.Logger
	}

	// Result summarizes a successful run.
	Result struct {
		WorkDir string `json:"work_dir"`
		// Timestamp is the signing time shared by every resource.
		Timestamp time.Time `json:"timestamp"`
		// Resources are the signed resource directories, relative to WorkDir.
		Resources []string `json:"resources"`
		// Recovered lists resources whose descriptor was missing or
		// unparseable and was signed from an empty document.
		Recovered []string `json:"recovered,omitempty"`
		// ManifestCreated is set when the manifest was rendered from config.
		ManifestCreated bool               `json:"manifest_created"`
		Manifest        *manifest.Manifest `json:"manifest"`
		// Removed lists every path the cleaner deleted, relative to WorkDir.
		Removed        []string `json:"removed"`
		ProjectArchive string   `json:"project_archive"`
		DocsArchive    string   `json:"docs_archive"`
	}
)

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Run executes the whole pipeline. Configuration problems are reported
// before anything on disk changes.
func Run(ctx context.Context, opts Options) (*Result, error) {
	r, err := newRunner(opts)
	if err != nil {
		return nil, err
	}
	return r.run(ctx)
}

type runner struct {
	workDir string
	cfg     *config.Config
	clock   Clock
	log     *log.Logger
	result  *Result
}

func newRunner(opts Options) (*runner, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithIssue(issue.ConfigInvalidId).
			Wrap(err).
			BuildError()
	}

	workDir := opts.WorkDir
	if workDir == "" {
		workDir = "."
	}
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &runner{
		workDir: abs,
		cfg:     cfg,
		clock:   clock,
		log:     logger,
		result:  &Result{WorkDir: abs},
	}, nil
}

func (r *runner) path(rel string) string {
	return filepath.Join(r.workDir, filepath.FromSlash(rel))
}

func (r *runner) rel(path string) string {
	if rel, err := filepath.Rel(r.workDir, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}

func (r *runner) run(ctx context.Context) (*Result, error) {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"check workspace", r.checkWorkspace},
		{"prepare manifest", r.prepareManifest},
		{"convert resources", r.convert},
		{"sign resources", r.sign},
		{"remove bookkeeping", r.removeBookkeeping},
		{"archive documentation", r.archiveDocs},
		{"archive project", r.archiveProject},
	}

	start := time.Now()
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("build canceled before %s: %w", step.name, err)
		}
		r.log.Debug("step", "name", step.name)
		if err := step.fn(ctx); err != nil {
			return nil, err
		}
	}

	r.log.Info("build complete",
		"resources", len(r.result.Resources),
		"project", r.result.ProjectArchive,
		"docs", r.result.DocsArchive,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return r.result, nil
}

func (r *runner) checkWorkspace(context.Context) error {
	root := r.path(r.cfg.ResourceRootPath())
	info, err := os.Stat(root)
	if err == nil && !info.IsDir() {
		err = fmt.Errorf("%s is not a directory", root)
	}
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("locate generated resources").
			WithResource(root).
			WithIssue(issue.WorkDirNotFoundId).
			WithSuggestion("Run respack in the generator output directory or pass it as an argument").
			Wrap(err).
			BuildError()
	}

	if limit, ok, _ := r.cfg.RecursionLimitValue(); ok {
		r.log.Debug("recursion limit", "value", limit)
	}
	return nil
}

func (r *runner) prepareManifest(context.Context) error {
	path := r.path(r.cfg.Layout.ManifestFile)
	res, err := manifest.Ensure(path, r.cfg.ManifestProperties())
	if err != nil {
		return wrapFSError(err, "prepare project manifest", path, issue.ManifestInvalidId)
	}
	r.result.Manifest = res.Manifest
	r.result.ManifestCreated = res.Created
	if res.Created {
		r.log.Info("rendered project manifest", "path", r.rel(path), "title", res.Manifest.Title)
	}
	return nil
}

func (r *runner) convert(context.Context) error {
	root := r.path(r.cfg.ResourceRootPath())
	dirs, err := resource.Convert(root, r.cfg.ExtensionTable())
	if err != nil {
		id := issue.PermissionDeniedId
		if errors.Is(err, resource.ErrUnexpectedExtension) || errors.Is(err, resource.ErrDestinationExists) {
			id = issue.UnexpectedArtifactId
		}
		return wrapFSError(err, "convert generated tree", root, id)
	}
	r.result.Resources = make([]string, len(dirs))
	for i, dir := range dirs {
		r.result.Resources[i] = r.rel(dir)
	}
	r.log.Info("converted resources", "root", r.rel(root), "resources", len(dirs))
	return nil
}

func (r *runner) sign(ctx context.Context) error {
	// Captured once so every resource of this build carries the same time.
	ts := r.clock.Now().UTC().Truncate(time.Second)
	r.result.Timestamp = ts

	signer := resource.NewSigner(r.cfg.Actor, ts,
		resource.WithDescriptorName(r.cfg.Layout.DescriptorFile),
		resource.WithHintScope(r.cfg.HintScope),
		resource.WithStrict(r.cfg.Signing.Strict),
	)

	workers := r.cfg.Signing.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]*resource.SignResult, len(r.result.Resources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rel := range r.result.Resources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dir := r.path(rel)
			res, err := signer.Sign(dir)
			if err != nil {
				id := issue.PermissionDeniedId
				if errors.Is(err, resource.ErrMalformedDescriptor) {
					id = issue.DescriptorMalformedId
				}
				return wrapFSError(err, "sign resource", dir, id)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, res := range results {
		if !res.Recovered {
			continue
		}
		rel := r.result.Resources[i]
		r.result.Recovered = append(r.result.Recovered, rel)
		if res.Cause != nil {
			r.log.Warn("descriptor unreadable, signed from empty", "path", rel, "error", res.Cause)
		} else {
			r.log.Debug("descriptor missing, signed from empty", "path", rel)
		}
	}
	r.log.Info("signed resources",
		"resources", len(results),
		"actor", signer.Actor(),
		"timestamp", ts.Format(time.RFC3339),
		"workers", workers)
	return nil
}

func (r *runner) removeBookkeeping(context.Context) error {
	removed, err := workspace.RemoveMatching(r.workDir, r.cfg.Layout.Bookkeeping)
	if err != nil {
		return wrapFSError(err, "remove generator bookkeeping", r.workDir, issue.CleanupFailedId)
	}
	for _, rel := range removed {
		r.log.Debug("removed", "path", rel)
	}
	r.result.Removed = append(r.result.Removed, removed...)
	return nil
}

func (r *runner) archiveOptions() []archive.Option {
	return []archive.Option{archive.WithPinnedTimestamps(r.cfg.Archive.PinTimestamps)}
}

func (r *runner) archiveDocs(context.Context) error {
	docsDir := r.path(r.cfg.Layout.DocsDir)
	dest := r.path(r.cfg.Layout.DocsArchive)

	// A missing docs tree still yields a docs archive holding its root marker.
	if _, err := os.Stat(docsDir); errors.Is(err, fs.ErrNotExist) {
		r.log.Warn("documentation directory missing, writing an empty docs archive", "path", r.rel(docsDir))
		if err := os.MkdirAll(docsDir, 0o755); err != nil {
			return wrapFSError(err, "create documentation directory", docsDir, issue.PermissionDeniedId)
		}
	}

	if err := archive.Build(docsDir, dest, r.archiveOptions()...); err != nil {
		return wrapFSError(err, "build documentation archive", dest, issue.ArchiveFailedId)
	}
	r.result.DocsArchive = r.rel(dest)
	r.log.Info("wrote archive", "archive", r.result.DocsArchive)

	return r.remove(docsDir)
}

func (r *runner) archiveProject(context.Context) error {
	bundleDir := r.path(r.cfg.Layout.BundleDir)
	dest := r.path(r.cfg.Layout.ProjectArchive)
	manifestPath := r.path(r.cfg.Layout.ManifestFile)

	if err := archive.Build(bundleDir, dest, r.archiveOptions()...); err != nil {
		return wrapFSError(err, "build project archive", dest, issue.ArchiveFailedId)
	}
	entry := filepath.Base(manifestPath)
	if err := archive.Append(dest, entry, manifestPath, r.archiveOptions()...); err != nil {
		return wrapFSError(err, "inject project manifest", dest, issue.ArchiveFailedId)
	}
	r.result.ProjectArchive = r.rel(dest)
	r.log.Info("wrote archive", "archive", r.result.ProjectArchive, "manifest", entry)

	if err := r.remove(manifestPath); err != nil {
		return err
	}
	return r.remove(bundleDir)
}

func (r *runner) remove(path string) error {
	removed, err := workspace.RemoveIfExists(path)
	if err != nil {
		return wrapFSError(err, "clean workspace", path, issue.CleanupFailedId)
	}
	if removed {
		rel := r.rel(path)
		r.result.Removed = append(r.result.Removed, rel)
		r.log.Debug("removed", "path", rel)
	}
	return nil
}

// wrapFSError builds the ActionableError for a failed step. Permission
// problems are reported as such whatever step hit them.
func wrapFSError(err error, operation, resource string, id issue.Id) error {
	if errors.Is(err, fs.ErrPermission) {
		id = issue.PermissionDeniedId
	}
	return issue.NewErrorContext().
		WithOperation(operation).
		WithResource(resource).
		WithIssue(id).
		WithSuggestions(suggestions(id)...).
		Wrap(err).
		BuildError()
}

func suggestions(id issue.Id) []string {
	switch id {
	case issue.UnexpectedArtifactId:
		return []string{
			"Map the extension in layout.extensions",
			"Remove the file from the template output",
		}
	case issue.DescriptorMalformedId:
		return []string{
			"Fix the descriptor by hand",
			"Set signing.strict to false to sign descriptors with broken JSON from an empty one",
		}
	case issue.ManifestInvalidId:
		return []string{
			"Give the manifest a non-empty title",
			"Delete the manifest to have it rendered from config",
		}
	case issue.PermissionDeniedId:
		return []string{"Check the permissions of the working directory"}
	case issue.ArchiveFailedId:
		return []string{"Check free disk space in the working directory"}
	case issue.CleanupFailedId:
		return []string{"Remove the path by hand; the archives are complete"}
	default:
		return nil
	}
}
