// Package tailor implements the concrete document-tailoring stages:
// matching source material against target specs, drafting and polishing,
// fact verification, machine-style detection, and length pruning. Stages
// compose the generic loop/pool/unit machinery with thin delegated units.
package tailor

import (
	"context"
	"encoding/json"

	"github.com/teranos/refinery/decide"
	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/gen"
	"github.com/teranos/refinery/unit"
)

// TargetSpec is one target the source material can be tailored toward.
type TargetSpec struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// DraftInput feeds a drafting unit.
type DraftInput struct {
	Target     TargetSpec
	Source     string // source-of-truth material
	Guidelines string // merged writing guidelines, may be empty
	DocType    string // "resume" or "cover_letter"
}

// Document is a tailored document moving through the pipeline.
type Document struct {
	TargetID string `json:"target_id"`
	DocType  string `json:"doc_type"`
	Content  string `json:"content"`
}

// delegate is a work unit backed by a single delegated call. Every
// non-mechanical unit in this package is one of these: validation and
// formatting live here, the content intelligence lives behind the client.
type delegate[I, O any] struct {
	name     string
	kind     string
	client   gen.Client
	validate func(I) error
	request  func(I) gen.Request
	format   func(*gen.Response) (O, error)
}

func (d *delegate[I, O]) Name() string { return d.name }
func (d *delegate[I, O]) Kind() string { return d.kind }

func (d *delegate[I, O]) Validate(input I) error {
	if d.validate == nil {
		return nil
	}
	return d.validate(input)
}

func (d *delegate[I, O]) Execute(ctx context.Context, input I) (*gen.Response, error) {
	return d.client.Call(ctx, d.request(input))
}

func (d *delegate[I, O]) Format(raw *gen.Response) (O, error) {
	return d.format(raw)
}

// formatText decodes a response whose content is a plain string.
func formatText(raw *gen.Response) (string, error) {
	var s string
	if err := raw.Decode(&s); err != nil {
		return "", err
	}
	if s == "" {
		return "", errors.New("empty content")
	}
	return s, nil
}

// NewMatchUnit builds the unit that scores source material against one
// target spec.
func NewMatchUnit(client gen.Client, source string) unit.Unit[TargetSpec, decide.MatchResult] {
	return &delegate[TargetSpec, decide.MatchResult]{
		name:   "match_target",
		kind:   "evaluation",
		client: client,
		validate: func(t TargetSpec) error {
			if t.ID == "" || t.Content == "" {
				return errors.New("target spec needs id and content")
			}
			if source == "" {
				return errors.New("source material is empty")
			}
			return nil
		},
		request: func(t TargetSpec) gen.Request {
			return gen.Request{
				Task: "match_target",
				Kind: gen.KindEvaluate,
				Payload: map[string]any{
					"target_id":    t.ID,
					"target_title": t.Title,
					"target_spec":  t.Content,
					"source":       source,
				},
			}
		},
		format: func(raw *gen.Response) (decide.MatchResult, error) {
			return decide.ParseMatchResult(raw.Content)
		},
	}
}

// NewDraftUnit builds the unit that produces the first full draft.
func NewDraftUnit(client gen.Client) unit.Unit[DraftInput, string] {
	return &delegate[DraftInput, string]{
		name:   "draft_document",
		kind:   "generation",
		client: client,
		validate: func(in DraftInput) error {
			if in.Target.Content == "" || in.Source == "" {
				return errors.New("draft input needs target spec and source material")
			}
			if in.DocType == "" {
				return errors.New("draft input needs a document type")
			}
			return nil
		},
		request: func(in DraftInput) gen.Request {
			return gen.Request{
				Task: "draft_document",
				Kind: gen.KindGenerate,
				Payload: map[string]any{
					"target_spec": in.Target.Content,
					"source":      in.Source,
					"guidelines":  in.Guidelines,
					"doc_type":    in.DocType,
				},
			}
		},
		format: formatText,
	}
}

// NewEvaluateUnit builds the quality scorer consulted by the refinement
// loop. Scores are clamped during formatting, never downstream.
func NewEvaluateUnit(client gen.Client, target TargetSpec) unit.Unit[string, decide.Evaluation] {
	return &delegate[string, decide.Evaluation]{
		name:   "evaluate_quality",
		kind:   "evaluation",
		client: client,
		validate: func(candidate string) error {
			if candidate == "" {
				return errors.New("nothing to evaluate")
			}
			return nil
		},
		request: func(candidate string) gen.Request {
			return gen.Request{
				Task: "evaluate_quality",
				Kind: gen.KindEvaluate,
				Payload: map[string]any{
					"candidate":   candidate,
					"target_spec": target.Content,
				},
			}
		},
		format: func(raw *gen.Response) (decide.Evaluation, error) {
			return decide.ParseEvaluation(raw.Content)
		},
	}
}

// revision describes the payload shared by repair/polish/humanize units.
type revision struct {
	Candidate string
	Notes     string
	Issues    []string
}

// newRevisionUnit builds a unit that rewrites a candidate for some purpose.
func newRevisionUnit(client gen.Client, task string) unit.Unit[revision, string] {
	return &delegate[revision, string]{
		name:   task,
		kind:   "generation",
		client: client,
		validate: func(r revision) error {
			if r.Candidate == "" {
				return errors.New("nothing to revise")
			}
			return nil
		},
		request: func(r revision) gen.Request {
			return gen.Request{
				Task: task,
				Kind: gen.KindRevise,
				Payload: map[string]any{
					"candidate": r.Candidate,
					"notes":     r.Notes,
					"issues":    r.Issues,
				},
			}
		},
		format: formatText,
	}
}

// NewFixUnit builds the targeted critical-issue repair unit.
func NewFixUnit(client gen.Client) unit.Unit[revision, string] {
	return newRevisionUnit(client, "repair_critical_issues")
}

// NewImproveUnit builds the general polish unit.
func NewImproveUnit(client gen.Client) unit.Unit[revision, string] {
	return newRevisionUnit(client, "polish_document")
}

// FactCheck is the structured result of claim verification.
type FactCheck struct {
	HasFalseFacts bool     `json:"has_false_facts"`
	FalseFacts    []string `json:"false_facts"`
}

// NewFactCheckUnit builds the unit that verifies a candidate's claims
// against the source-of-truth material.
func NewFactCheckUnit(client gen.Client, source string) unit.Unit[string, FactCheck] {
	return &delegate[string, FactCheck]{
		name:   "verify_claims",
		kind:   "evaluation",
		client: client,
		validate: func(candidate string) error {
			if candidate == "" {
				return errors.New("nothing to verify")
			}
			return nil
		},
		request: func(candidate string) gen.Request {
			return gen.Request{
				Task: "verify_claims",
				Kind: gen.KindCheck,
				Payload: map[string]any{
					"candidate": candidate,
					"source":    source,
				},
			}
		},
		format: func(raw *gen.Response) (FactCheck, error) {
			var fc FactCheck
			if err := raw.Decode(&fc); err != nil {
				return FactCheck{}, err
			}
			// A checker that lists claims but forgets the flag still flags.
			if len(fc.FalseFacts) > 0 {
				fc.HasFalseFacts = true
			}
			return fc, nil
		},
	}
}

// NewCorrectClaimsUnit builds the unit that rewrites a candidate to
// correct flagged claims against the source material.
func NewCorrectClaimsUnit(client gen.Client, source string) unit.Unit[revision, string] {
	return &delegate[revision, string]{
		name:   "correct_claims",
		kind:   "generation",
		client: client,
		validate: func(r revision) error {
			if r.Candidate == "" {
				return errors.New("nothing to correct")
			}
			return nil
		},
		request: func(r revision) gen.Request {
			return gen.Request{
				Task: "correct_claims",
				Kind: gen.KindRevise,
				Payload: map[string]any{
					"candidate": r.Candidate,
					"issues":    r.Issues,
					"source":    source,
				},
			}
		},
		format: formatText,
	}
}

// Detection is the structured result of machine-style detection.
type Detection struct {
	// HumanLikeness is the confidence the text reads as human-written,
	// clamped to [0,1].
	HumanLikeness float64 `json:"human_likeness"`
	// Tells lists the phrasings that gave the draft away.
	Tells []string `json:"tells"`
}

// NewDetectUnit builds the machine-style detector.
func NewDetectUnit(client gen.Client) unit.Unit[string, Detection] {
	return &delegate[string, Detection]{
		name:   "detect_machine_style",
		kind:   "evaluation",
		client: client,
		validate: func(candidate string) error {
			if candidate == "" {
				return errors.New("nothing to detect")
			}
			return nil
		},
		request: func(candidate string) gen.Request {
			return gen.Request{
				Task:    "detect_machine_style",
				Kind:    gen.KindCheck,
				Payload: map[string]any{"candidate": candidate},
			}
		},
		format: func(raw *gen.Response) (Detection, error) {
			var d Detection
			if err := raw.Decode(&d); err != nil {
				return Detection{}, err
			}
			d.HumanLikeness = decide.Clamp(d.HumanLikeness)
			return d, nil
		},
	}
}

// NewHumanizeUnit builds the unit that rewrites a draft to remove
// machine-style tells.
func NewHumanizeUnit(client gen.Client) unit.Unit[revision, string] {
	return newRevisionUnit(client, "humanize_draft")
}

// decodeList decodes a response carrying a JSON array.
func decodeList[T any](raw *gen.Response) ([]T, error) {
	var items []T
	if err := raw.Decode(&items); err != nil {
		// Tolerate a wrapper object with an "options" field.
		var wrapper struct {
			Options json.RawMessage `json:"options"`
		}
		if werr := raw.Decode(&wrapper); werr != nil || wrapper.Options == nil {
			return nil, err
		}
		if err := json.Unmarshal(wrapper.Options, &items); err != nil {
			return nil, errors.Wrap(err, "decode options")
		}
	}
	return items, nil
}
