package tailor

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/refinery/decide"
	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/gen"
	"github.com/teranos/refinery/logger"
	"github.com/teranos/refinery/orchestra"
	"github.com/teranos/refinery/pool"
	"github.com/teranos/refinery/run"
	"github.com/teranos/refinery/store"
	"github.com/teranos/refinery/unit"
)

// ChangeOption is one proposed edit for shrinking a document.
type ChangeOption struct {
	// Description says what the edit does, for the audit trail.
	Description string `json:"description"`
	// Search is the exact text to replace. Must occur in the document.
	Search string `json:"search"`
	// Replace is the shorter replacement, possibly empty for removal.
	Replace string `json:"replace"`
	// QualityDelta estimates the quality change in [-1,1].
	QualityDelta float64 `json:"quality_delta"`
	// ImpactScore estimates how load-bearing the touched text is, in [0,1].
	ImpactScore float64 `json:"impact_score"`
}

// LengthReduction is how many characters the option saves.
func (o ChangeOption) LengthReduction() int {
	return len(o.Search) - len(o.Replace)
}

// Effectiveness is quality delta per character removed. Options that do
// not shrink the document have no defined effectiveness and are discarded
// before ranking.
func (o ChangeOption) Effectiveness() float64 {
	return o.QualityDelta / float64(o.LengthReduction())
}

// Oracle decides whether a rendered document is acceptable. The pruning
// loop waits on it without any wall-clock bound, so a human-backed
// implementation can take as long as it needs; cancellation arrives
// through ctx.
type Oracle interface {
	Accept(ctx context.Context, rendered string) (accepted bool, feedback string, err error)
}

// AutoOracle accepts a document once its length is within tolerance of the
// target. The default oracle when no human is in the loop.
type AutoOracle struct {
	Target    int
	Tolerance float64
	Policy    *decide.Policy
}

// Accept implements Oracle.
func (o *AutoOracle) Accept(_ context.Context, rendered string) (bool, string, error) {
	if o.Policy.IsLengthAcceptable(len(rendered), o.Target, o.Tolerance) {
		return true, "", nil
	}
	return false, "document length outside tolerance", nil
}

// newProposeUnit builds a unit that proposes one category of shrink
// options for a document.
func newProposeUnit(client gen.Client, task string) unit.Unit[string, []ChangeOption] {
	return &delegate[string, []ChangeOption]{
		name:   task,
		kind:   "generation",
		client: client,
		validate: func(candidate string) error {
			if candidate == "" {
				return errors.New("nothing to prune")
			}
			return nil
		},
		request: func(candidate string) gen.Request {
			return gen.Request{
				Task:    task,
				Kind:    gen.KindGenerate,
				Payload: map[string]any{"candidate": candidate},
			}
		},
		format: func(raw *gen.Response) ([]ChangeOption, error) {
			return decodeList[ChangeOption](raw)
		},
	}
}

// RankOptions filters and orders change options: non-positive length
// reductions and options rejected by the change-impact policy are
// discarded, the rest sort by effectiveness descending. Ties preserve
// proposal order.
func RankOptions(policy *decide.Policy, options []ChangeOption) []ChangeOption {
	var viable []ChangeOption
	for _, o := range options {
		if o.LengthReduction() <= 0 {
			continue
		}
		if !policy.EvaluateChangeImpact(o.ImpactScore, o.QualityDelta) {
			continue
		}
		viable = append(viable, o)
	}
	sort.SliceStable(viable, func(i, j int) bool {
		return viable[i].Effectiveness() > viable[j].Effectiveness()
	})
	return viable
}

// ApplyOption splices one change into the document: the first occurrence
// of Search is replaced with Replace. A Search with no occurrence means
// the proposal was hallucinated against stale content.
func ApplyOption(content string, o ChangeOption) (string, error) {
	if o.Search == "" {
		return "", errors.Wrap(errors.ErrInvalidArgument, "empty search text")
	}
	if !strings.Contains(content, o.Search) {
		return "", errors.Newf("search text not found in document: %.60q", o.Search)
	}
	return strings.Replace(content, o.Search, o.Replace, 1), nil
}

// PruningOutput is what the pruning stage publishes.
type PruningOutput struct {
	Documents []Document     `json:"documents"`
	Passes    map[string]int `json:"passes"`
}

// PruningStage shrinks each written document until the oracle accepts it:
// render, ask, and on rejection propose rewrite and removal options in
// parallel, rank them by effectiveness, apply exactly the top one, and ask
// again. The loop has no iteration ceiling of its own; running out of
// viable options or context cancellation are the exits.
type PruningStage struct {
	Oracle Oracle

	Client   gen.Client
	Pool     *pool.Pool
	Policy   *decide.Policy
	Versions *store.VersionStore
	Sink     unit.ArtifactSink
	Logger   *zap.SugaredLogger
}

// Stage implements orchestra.Stage.
func (s *PruningStage) Stage() run.Stage {
	return run.StagePruning
}

// Execute implements orchestra.Stage.
func (s *PruningStage) Execute(ctx context.Context, rc *run.Context) (any, error) {
	writing, ok := rc.ContextData[orchestra.OutputKey(run.StageWritingPolishing)].(*WritingOutput)
	if !ok {
		return nil, errors.New("writing output missing from run context")
	}

	out := &PruningOutput{Passes: make(map[string]int)}
	for _, doc := range writing.Documents {
		pruned, passes, err := s.pruneDocument(ctx, doc)
		if err != nil {
			return nil, errors.Wrapf(err, "prune %s", doc.TargetID)
		}
		out.Documents = append(out.Documents, *pruned)
		out.Passes[doc.TargetID] = passes
	}
	return out, nil
}

func (s *PruningStage) pruneDocument(ctx context.Context, doc Document) (*Document, int, error) {
	docID := doc.TargetID + "/" + doc.DocType
	content := doc.Content
	passes := 0

	rewrites := newProposeUnit(s.Client, "propose_rewrite_options")
	removals := newProposeUnit(s.Client, "propose_removal_options")

	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, errors.Wrapf(err, "pruning %s", docID)
		}

		rendered := Render(content)
		accepted, feedback, err := s.Oracle.Accept(ctx, rendered)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "oracle for %s", docID)
		}
		if accepted {
			s.Logger.Infow("Document accepted",
				logger.FieldDocument, docID,
				"passes", passes,
				"length", len(rendered),
			)
			return &Document{TargetID: doc.TargetID, DocType: doc.DocType, Content: content}, passes, nil
		}
		s.Logger.Infow("Document rejected, proposing changes",
			logger.FieldDocument, docID,
			"feedback", feedback,
			"length", len(rendered),
		)

		// Both proposal sets run concurrently.
		tasks := []pool.Task[string, []ChangeOption]{
			unit.NewRunner(rewrites, string(run.StagePruning), nil, s.Logger),
			unit.NewRunner(removals, string(run.StagePruning), nil, s.Logger),
		}
		results, err := pool.Execute(ctx, s.Pool, tasks, []string{content, content})
		if err != nil {
			return nil, 0, err
		}

		var options []ChangeOption
		for _, r := range results {
			if r.Err != nil {
				s.Logger.Warnw("Option proposal failed",
					logger.FieldDocument, docID,
					"task", r.Task,
					logger.FieldError, r.Err,
				)
				continue
			}
			options = append(options, r.Output...)
		}

		ranked := RankOptions(s.Policy, options)
		if len(ranked) == 0 {
			return nil, 0, errors.Newf("no viable shrink options for %s after %d passes", docID, passes)
		}

		top := ranked[0]
		updated, err := ApplyOption(content, top)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "apply change to %s", docID)
		}
		content = updated
		passes++

		if _, err := s.Versions.Store(ctx, docID, content, nil, "prune: "+top.Description); err != nil {
			return nil, 0, err
		}
		s.Logger.Infow("Change applied",
			logger.FieldDocument, docID,
			"change", top.Description,
			"saved_chars", top.LengthReduction(),
			"length", len(content),
		)
	}
}

// Render produces the reviewable plain-text form of a document. The
// mechanical stand-in for a real renderer: normalized line endings and
// trimmed trailing whitespace.
func Render(content string) string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
}
