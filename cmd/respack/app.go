// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"os"

	"github.com/respack/respack/internal/config"
	"github.com/respack/respack/internal/pipeline"

	"github.com/charmbracelet/log"
)

type (
	// App wires CLI services and shared dependencies. It is the composition root
	// for the CLI layer: every Cobra handler receives an App and delegates through
	// its service interfaces.
	App struct {
		Config  ConfigProvider
		Builder BuildService
		Clock   pipeline.Clock
		stdout  io.Writer
		stderr  io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil fields
	// are replaced with production defaults by NewApp.
	Dependencies struct {
		Config  ConfigProvider
		Builder BuildService
		Clock   pipeline.Clock
		Stdout  io.Writer
		Stderr  io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// BuildService runs the post-processing pipeline on one working directory.
	BuildService interface {
		Build(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error)
	}

	pipelineBuilder struct{}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) (*App, error) {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Builder == nil {
		deps.Builder = pipelineBuilder{}
	}
	if deps.Clock == nil {
		deps.Clock = pipeline.SystemClock{}
	}

	return &App{
		Config:  deps.Config,
		Builder: deps.Builder,
		Clock:   deps.Clock,
		stdout:  deps.Stdout,
		stderr:  deps.Stderr,
	}, nil
}

// Build runs pipeline.Run.
func (pipelineBuilder) Build(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error) {
	return pipeline.Run(ctx, opts)
}

// newLogger creates the process logger. Library packages never log; the CLI
// hands this logger to the pipeline.
func newLogger(w io.Writer, verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		Prefix: config.AppName,
		Level:  level,
	})
}
