package merge

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/gen"
	"github.com/teranos/refinery/logger"
	"github.com/teranos/refinery/orchestra"
	"github.com/teranos/refinery/run"
	"github.com/teranos/refinery/store"
	"github.com/teranos/refinery/unit"
)

// Input is the raw material for a merge: the principles the guidelines
// must encode, examples to draw on, and the sections the output must have.
type Input struct {
	Title            string   `json:"title"`
	Principles       []string `json:"principles"`
	Examples         []string `json:"examples"`
	RequiredSections []string `json:"required_sections"`
}

// Metadata is the YAML header prefixed to the final merged document.
type Metadata struct {
	Title      string             `yaml:"title"`
	MergedAt   time.Time          `yaml:"merged_at"`
	Iterations int                `yaml:"iterations"`
	Confidence float64            `yaml:"confidence"`
	Validators []ValidationResult `yaml:"validators"`
}

// Output is the result of a merge run.
type Output struct {
	// Document is the merged guidelines with the metadata header prefixed.
	Document string `json:"document"`
	// Body is the guidelines without the header.
	Body       string             `json:"body"`
	Confidence float64            `json:"confidence"`
	Iterations int                `json:"iterations"`
	Converged  bool               `json:"converged"`
	Validators []ValidationResult `json:"validators"`
}

// Engine drives the guideline-merging loop: one initial merge call, then
// validate → refine until the weighted confidence clears the threshold or
// the iteration ceiling is hit.
type Engine struct {
	MaxIterations int
	Threshold     float64

	Client   gen.Client
	Versions *store.VersionStore
	Sink     unit.ArtifactSink
	Logger   *zap.SugaredLogger
}

const mergeDocID = "guidelines"

// Merge produces the merged guideline document.
func (e *Engine) Merge(ctx context.Context, in Input) (*Output, error) {
	if len(in.Principles) == 0 {
		return nil, errors.Wrap(errors.ErrValidationFailed, "no principles to merge")
	}
	log := e.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	merger := unit.NewRunner(newMergeUnit(e.Client), string(run.StageMerging), e.Sink, log)
	refiner := unit.NewRunner(newRefineUnit(e.Client), string(run.StageMerging), nil, log)

	candidate, err := merger.Run(ctx, in)
	if err != nil {
		return nil, errors.Wrap(err, "initial merge")
	}
	if e.Versions != nil {
		if _, err := e.Versions.Store(ctx, mergeDocID, candidate, nil, "initial merge"); err != nil {
			return nil, err
		}
	}

	out := &Output{}
	for out.Iterations < e.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "merge loop")
		}
		out.Iterations++

		out.Validators = Validate(candidate, in)
		out.Confidence = Confidence(out.Validators)
		log.Infow("Merge validated",
			logger.FieldIteration, out.Iterations,
			logger.FieldScore, out.Confidence,
			logger.FieldThreshold, e.Threshold,
		)

		if out.Confidence >= e.Threshold {
			out.Converged = true
			break
		}
		if out.Iterations == e.MaxIterations {
			break
		}

		issues := FailingIssues(out.Validators)
		refined, err := refiner.Run(ctx, refineInput{Candidate: candidate, Issues: issues})
		if err != nil {
			return nil, errors.Wrapf(err, "refine merge iteration %d", out.Iterations)
		}
		candidate = refined
		if e.Versions != nil {
			score := out.Confidence
			if _, err := e.Versions.Store(ctx, mergeDocID, candidate, &score, "validator-driven refinement"); err != nil {
				return nil, err
			}
		}
	}

	out.Body = candidate
	out.Document, err = withHeader(candidate, Metadata{
		Title:      in.Title,
		MergedAt:   time.Now().UTC(),
		Iterations: out.Iterations,
		Confidence: out.Confidence,
		Validators: out.Validators,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// withHeader prefixes the document with a YAML front-matter block.
func withHeader(body string, meta Metadata) (string, error) {
	raw, err := yaml.Marshal(meta)
	if err != nil {
		return "", errors.Wrap(err, "marshal merge metadata")
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(raw)
	b.WriteString("---\n\n")
	b.WriteString(body)
	return b.String(), nil
}

func newMergeUnit(client gen.Client) unit.Unit[Input, string] {
	return &mergeUnit{client: client}
}

type mergeUnit struct {
	client gen.Client
}

func (u *mergeUnit) Name() string { return "merge_guidelines" }
func (u *mergeUnit) Kind() string { return "generation" }

func (u *mergeUnit) Validate(in Input) error {
	if len(in.Principles) == 0 {
		return errors.New("no principles")
	}
	return nil
}

func (u *mergeUnit) Execute(ctx context.Context, in Input) (*gen.Response, error) {
	return u.client.Call(ctx, gen.Request{
		Task: "merge_guidelines",
		Kind: gen.KindGenerate,
		Payload: map[string]any{
			"title":             in.Title,
			"principles":        in.Principles,
			"examples":          in.Examples,
			"required_sections": in.RequiredSections,
		},
	})
}

func (u *mergeUnit) Format(raw *gen.Response) (string, error) {
	var s string
	if err := raw.Decode(&s); err != nil {
		return "", err
	}
	if s == "" {
		return "", errors.New("empty merged document")
	}
	return s, nil
}

type refineInput struct {
	Candidate string
	Issues    []string
}

func newRefineUnit(client gen.Client) unit.Unit[refineInput, string] {
	return &refineMergeUnit{client: client}
}

type refineMergeUnit struct {
	client gen.Client
}

func (u *refineMergeUnit) Name() string { return "refine_guidelines" }
func (u *refineMergeUnit) Kind() string { return "generation" }

func (u *refineMergeUnit) Validate(in refineInput) error {
	if in.Candidate == "" {
		return errors.New("nothing to refine")
	}
	return nil
}

func (u *refineMergeUnit) Execute(ctx context.Context, in refineInput) (*gen.Response, error) {
	return u.client.Call(ctx, gen.Request{
		Task: "refine_guidelines",
		Kind: gen.KindRevise,
		Payload: map[string]any{
			"candidate": in.Candidate,
			"issues":    in.Issues,
		},
	})
}

func (u *refineMergeUnit) Format(raw *gen.Response) (string, error) {
	var s string
	if err := raw.Decode(&s); err != nil {
		return "", err
	}
	if s == "" {
		return "", errors.New("empty refined document")
	}
	return s, nil
}

// Stage adapts the engine to the orchestra pipeline.
type Stage struct {
	In     Input
	Engine *Engine
}

// Stage implements orchestra.Stage.
func (s *Stage) Stage() run.Stage {
	return run.StageMerging
}

// Execute implements orchestra.Stage.
func (s *Stage) Execute(ctx context.Context, _ *run.Context) (any, error) {
	return s.Engine.Merge(ctx, s.In)
}

var _ orchestra.Stage = (*Stage)(nil)
