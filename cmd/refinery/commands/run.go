package commands

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/refinery/decide"
	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/gen"
	"github.com/teranos/refinery/orchestra"
	"github.com/teranos/refinery/pool"
	"github.com/teranos/refinery/run"
	"github.com/teranos/refinery/store"
	"github.com/teranos/refinery/sym"
	"github.com/teranos/refinery/tailor"
)

var (
	sourceFlag     string
	targetsFlag    string
	docTypeFlag    string
	guidelinesFlag string
	outFlag        string
)

// RunCmd executes the full tailoring pipeline.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: sym.Write + " Run the full tailoring pipeline",
	Long: sym.Write + ` run — match, draft, verify, polish, and prune.

Reads the source material and every target spec under --targets, then runs
the pipeline: matching, writing/polishing (with claim verification and,
for cover letters, machine-style detection), and pruning. Artifacts,
versions, and checkpoints land under the run directory and database.

Examples:
  refinery run --source cv.md --targets targets/
  refinery run --source cv.md --targets targets/ --doc-type cover_letter`,
	RunE: runPipeline,
}

func init() {
	RunCmd.Flags().StringVar(&sourceFlag, "source", "", "Path to the source-of-truth material (required)")
	RunCmd.Flags().StringVar(&targetsFlag, "targets", "", "Directory of target spec files (required)")
	RunCmd.Flags().StringVar(&docTypeFlag, "doc-type", tailor.DocTypeResume, "Document type: resume or cover_letter")
	RunCmd.Flags().StringVar(&guidelinesFlag, "guidelines", "", "Optional merged guidelines file")
	RunCmd.Flags().StringVar(&outFlag, "out", "", "Output directory (default: <run_dir>/<run_id>)")
	RunCmd.MarkFlagRequired("source")
	RunCmd.MarkFlagRequired("targets")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	source, err := os.ReadFile(sourceFlag)
	if err != nil {
		return errors.Wrap(err, "read source material")
	}
	targets, err := readTargets(targetsFlag)
	if err != nil {
		return err
	}
	guidelines := ""
	if guidelinesFlag != "" {
		raw, err := os.ReadFile(guidelinesFlag)
		if err != nil {
			return errors.Wrap(err, "read guidelines")
		}
		guidelines = string(raw)
	}

	if cfg.Gen.Endpoint == "" {
		return errors.New("no generative backend configured; set gen.endpoint or REFINERY_GEN_ENDPOINT")
	}
	client := gen.NewRateLimited(
		gen.NewHTTPClient(cfg.Gen.Endpoint, gen.HTTPOptions{
			Timeout: time.Duration(cfg.Gen.TimeoutSeconds) * time.Second,
			Logger:  log,
		}),
		cfg.Gen.RequestsPerMinute,
	)

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	runID := uuid.New().String()
	if err := store.CreateRun(ctx, database, runID); err != nil {
		return err
	}

	runDir := outFlag
	if runDir == "" {
		runDir = filepath.Join(cfg.RunDir, runID)
	}

	artifacts := store.NewArtifactStore(runDir, log)
	versions := store.NewVersionStore(database, runID, log)
	checkpoints := store.NewCheckpointStore(database, runID, log)
	policy := decide.NewPolicy(log)

	p, err := pool.New(cfg.PoolSize, log)
	if err != nil {
		return err
	}

	matching := &tailor.MatchingStage{
		Source:  string(source),
		Targets: targets,
		TopN:    cfg.TopN,
		Client:  client,
		Pool:    p,
		Policy:  policy,
		Sink:    artifacts,
		Logger:  log,
	}
	writing := &tailor.WritingStage{
		Targets:            targets,
		Source:             string(source),
		Guidelines:         guidelines,
		DocType:            docTypeFlag,
		MaxIterations:      cfg.MaxIterations,
		QualityThreshold:   cfg.QualityThreshold,
		DetectionThreshold: cfg.DetectionThreshold,
		Client:             client,
		Pool:               p,
		Policy:             policy,
		Versions:           versions,
		Sink:               artifacts,
		Logger:             log,
	}
	pruning := &tailor.PruningStage{
		Oracle: &tailor.AutoOracle{
			Target:    cfg.TargetLength,
			Tolerance: cfg.LengthTolerance,
			Policy:    policy,
		},
		Client:   client,
		Pool:     p,
		Policy:   policy,
		Versions: versions,
		Sink:     artifacts,
		Logger:   log,
	}

	seq := run.NewSequencer(runID, checkpoints, log)
	conductor := orchestra.NewConductor(seq, database, []orchestra.Stage{matching, writing, pruning}, log)

	start := time.Now()
	runErr := conductor.Run(ctx)

	printRunSummary(seq.Context(), runID, time.Since(start))
	if runErr != nil {
		return runErr
	}

	return writeOutputs(seq.Context(), runDir)
}

// readTargets loads every regular file in dir as one target spec. The
// filename (minus extension) is the target id; the first line is its title.
func readTargets(dir string) ([]tailor.TargetSpec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read targets directory")
	}
	var targets []tailor.TargetSpec
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "read target %s", e.Name())
		}
		content := string(raw)
		title := strings.TrimSpace(strings.TrimLeft(strings.SplitN(content, "\n", 2)[0], "# "))
		targets = append(targets, tailor.TargetSpec{
			ID:      strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			Title:   title,
			Content: content,
		})
	}
	if len(targets) == 0 {
		return nil, errors.Newf("no target specs found in %s", dir)
	}
	return targets, nil
}

// writeOutputs persists the pruned documents under the run directory.
func writeOutputs(rc *run.Context, runDir string) error {
	pruned, ok := rc.ContextData[orchestra.OutputKey(run.StagePruning)].(*tailor.PruningOutput)
	if !ok {
		return nil
	}
	outDir := filepath.Join(runDir, "final")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}
	for _, doc := range pruned.Documents {
		path := filepath.Join(outDir, doc.TargetID+"_"+doc.DocType+".md")
		if err := os.WriteFile(path, []byte(doc.Content), 0o644); err != nil {
			return errors.Wrapf(err, "write %s", path)
		}
		pterm.Success.Printfln("%s %s", sym.Done, path)
	}
	return nil
}

// printRunSummary renders the end-of-run table.
func printRunSummary(rc *run.Context, runID string, elapsed time.Duration) {
	pterm.DefaultSection.Printfln("Run %s", runID)

	rows := pterm.TableData{{"Stage", "Status", "Detail"}}
	if out, ok := rc.ContextData[orchestra.OutputKey(run.StageMatching)].(*tailor.MatchOutput); ok {
		rows = append(rows, []string{
			string(run.StageMatching), "done",
			pterm.Sprintf("%d/%d targets selected", len(out.Selected), len(out.All)),
		})
	}
	if out, ok := rc.ContextData[orchestra.OutputKey(run.StageWritingPolishing)].(*tailor.WritingOutput); ok {
		for _, r := range out.Reports {
			rows = append(rows, []string{
				string(run.StageWritingPolishing), string(r.Status),
				pterm.Sprintf("%s score %.2f after %d iterations", r.TargetID, r.FinalScore, r.Iterations),
			})
		}
	}
	if out, ok := rc.ContextData[orchestra.OutputKey(run.StagePruning)].(*tailor.PruningOutput); ok {
		for _, doc := range out.Documents {
			rows = append(rows, []string{
				string(run.StagePruning), "done",
				pterm.Sprintf("%s pruned in %d passes, %d chars", doc.TargetID, out.Passes[doc.TargetID], len(doc.Content)),
			})
		}
	}
	for _, e := range rc.ErrorLog {
		rows = append(rows, []string{string(e.Stage), "failed", e.Message})
	}
	rows = append(rows, []string{"total", string(rc.Stage), elapsed.Round(time.Millisecond).String()})

	pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
