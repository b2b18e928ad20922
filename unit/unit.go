// Package unit defines the work unit contract: the smallest schedulable
// piece of work in a run, wrapping one delegated generation or evaluation
// call (or a purely mechanical computation) behind a fixed
// validate → execute → format pipeline.
package unit

import (
	"context"

	"github.com/teranos/refinery/gen"
)

// Unit is the contract every work unit implements. The three pipeline
// operations are always invoked in order by a Runner; units never call
// each other's steps directly.
type Unit[I, O any] interface {
	// Name identifies the unit in logs, artifacts, and pool results.
	Name() string

	// Kind is the unit's capability-type tag, e.g. "generation",
	// "evaluation", "mechanical".
	Kind() string

	// Validate checks structural and content preconditions on the input.
	// A non-nil error stops the pipeline before any delegated call is made.
	Validate(input I) error

	// Execute performs the unit's work and returns the unshaped result.
	// Units that delegate return the backend's raw response; mechanical
	// units compute directly and wrap their result with gen.Object.
	Execute(ctx context.Context, input I) (*gen.Response, error)

	// Format normalizes the raw result into the unit's declared output
	// shape, filling defaults for missing fields and clamping numeric
	// fields to their valid ranges.
	Format(raw *gen.Response) (O, error)
}

// Artifact is the single persisted record a successful unit run produces.
type Artifact struct {
	// Stage tags which pipeline stage produced the artifact.
	Stage string
	// Name is the artifact's base name, typically the unit name.
	Name string
	// Content is the serialized output.
	Content []byte
	// Format is the content format: "json", "md", "txt".
	Format string
	// Metadata carries open key-value annotations.
	Metadata map[string]string
}

// ArtifactSink persists artifacts. The store package provides the
// filesystem implementation; tests substitute their own.
type ArtifactSink interface {
	WriteArtifact(ctx context.Context, a *Artifact) (string, error)
}

// Artifacter lets a unit shape its own artifact. Units that do not
// implement it get their formatted output serialized as JSON.
type Artifacter[O any] interface {
	Artifact(output O) (*Artifact, error)
}
