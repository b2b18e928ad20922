package unit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/logger"
)

// Runner drives a Unit through the fixed pipeline:
//
//	validate → execute → format → persist artifact → log complete
//
// The sequence is not overridable. Validation failure stops before any
// delegated call; a raw result still pending after execute is an error,
// never silently passed to Format; a successful run persists exactly one
// artifact.
//
// Runner implements pool.Task, so batches of runners go straight into the
// concurrency pool.
type Runner[I, O any] struct {
	unit   Unit[I, O]
	stage  string
	sink   ArtifactSink
	logger *zap.SugaredLogger
}

// NewRunner wraps a unit for execution within the named stage. sink may be
// nil, in which case no artifact is persisted (used by sub-steps whose
// output feeds directly into a loop rather than the artifact trail).
func NewRunner[I, O any](u Unit[I, O], stage string, sink ArtifactSink, log *zap.SugaredLogger) *Runner[I, O] {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner[I, O]{unit: u, stage: stage, sink: sink, logger: log}
}

// Name implements pool.Task.
func (r *Runner[I, O]) Name() string {
	return r.unit.Name()
}

// Run implements pool.Task.
func (r *Runner[I, O]) Run(ctx context.Context, input I) (O, error) {
	var zero O
	start := time.Now()

	if err := r.unit.Validate(input); err != nil {
		// Expected, non-exceptional: no delegated call was made and no
		// artifact is written.
		return zero, errors.Wrapf(errors.ErrValidationFailed, "%s: %v", r.unit.Name(), err)
	}

	raw, err := r.unit.Execute(ctx, input)
	if err != nil {
		return zero, errors.Wrapf(err, "%s execute after %.2fs",
			r.unit.Name(), time.Since(start).Seconds())
	}

	if raw.IsPending() {
		// A deferred request is never a final result. Resolving it is the
		// caller's job before this unit runs; by the time a raw result
		// reaches formatting it must be concrete.
		return zero, errors.Wrapf(errors.ErrPendingCall, "%s returned pending request %q",
			r.unit.Name(), raw.Pending.Task)
	}

	output, err := r.unit.Format(raw)
	if err != nil {
		return zero, errors.Wrapf(err, "%s format", r.unit.Name())
	}

	if r.sink != nil {
		artifact, err := r.buildArtifact(output)
		if err != nil {
			return zero, errors.Wrapf(err, "%s artifact", r.unit.Name())
		}
		r.tagArtifact(artifact, start, time.Now())
		path, err := r.sink.WriteArtifact(ctx, artifact)
		if err != nil {
			return zero, errors.Wrapf(err, "%s persist artifact", r.unit.Name())
		}
		r.logger.Debugw("Artifact written",
			logger.FieldUnit, r.unit.Name(),
			logger.FieldStage, r.stage,
			"path", path,
		)
	}

	r.logger.Infow("Unit complete",
		logger.FieldUnit, r.unit.Name(),
		logger.FieldKind, r.unit.Kind(),
		logger.FieldStage, r.stage,
		logger.FieldDuration, time.Since(start).Seconds(),
	)
	return output, nil
}

// tagArtifact stamps the artifact with the run's provenance: unit name,
// capability kind, stage, duration, and start/end timestamps. Keys already
// set by an Artifacter are left alone.
func (r *Runner[I, O]) tagArtifact(a *Artifact, start, end time.Time) {
	if a.Metadata == nil {
		a.Metadata = make(map[string]string, 6)
	}
	tag := func(key, value string) {
		if _, ok := a.Metadata[key]; !ok {
			a.Metadata[key] = value
		}
	}
	tag("unit", r.unit.Name())
	tag("kind", r.unit.Kind())
	tag("stage", r.stage)
	tag("duration", fmt.Sprintf("%.3fs", end.Sub(start).Seconds()))
	tag("start", start.UTC().Format(time.RFC3339Nano))
	tag("end", end.UTC().Format(time.RFC3339Nano))
}

func (r *Runner[I, O]) buildArtifact(output O) (*Artifact, error) {
	if a, ok := any(r.unit).(Artifacter[O]); ok {
		artifact, err := a.Artifact(output)
		if err != nil {
			return nil, err
		}
		if artifact.Stage == "" {
			artifact.Stage = r.stage
		}
		return artifact, nil
	}

	content, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "serialize output")
	}
	return &Artifact{
		Stage:   r.stage,
		Name:    r.unit.Name(),
		Content: content,
		Format:  "json",
	}, nil
}
