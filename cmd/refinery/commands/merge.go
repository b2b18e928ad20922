package commands

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/gen"
	"github.com/teranos/refinery/merge"
	"github.com/teranos/refinery/store"
	"github.com/teranos/refinery/sym"
)

var (
	principlesFlag string
	examplesFlag   string
	sectionsFlag   []string
	titleFlag      string
	mergeOutFlag   string
)

// MergeCmd runs the standalone guideline merger.
var MergeCmd = &cobra.Command{
	Use:   "merge",
	Short: sym.Merge + " Merge writing principles into validated guidelines",
	Long: sym.Merge + ` merge — synthesize writing guidelines.

Merges principles (one per non-empty line) and example documents into a
single guideline document, refining it until four validators — principle
coverage, example utilization, section completeness, actionability — agree
it is usable. The output carries a metadata header recording per-validator
scores.

Examples:
  refinery merge --principles principles.md --out guidelines.md
  refinery merge --principles principles.md --examples examples/ --sections "Structure,Tone"`,
	RunE: runMerge,
}

func init() {
	MergeCmd.Flags().StringVar(&principlesFlag, "principles", "", "File of principles, one per non-empty line (required)")
	MergeCmd.Flags().StringVar(&examplesFlag, "examples", "", "Directory of example documents")
	MergeCmd.Flags().StringSliceVar(&sectionsFlag, "sections", nil, "Required section headings")
	MergeCmd.Flags().StringVar(&titleFlag, "title", "Writing guidelines", "Guideline document title")
	MergeCmd.Flags().StringVar(&mergeOutFlag, "out", "guidelines.md", "Output file")
	MergeCmd.MarkFlagRequired("principles")
}

func runMerge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	principles, err := readLines(principlesFlag)
	if err != nil {
		return err
	}
	var examples []string
	if examplesFlag != "" {
		examples, err = readFiles(examplesFlag)
		if err != nil {
			return err
		}
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

	engine := &merge.Engine{
		MaxIterations: cfg.MaxIterations,
		Threshold:     cfg.QualityThreshold,
		Client:        client,
		Versions:      store.NewVersionStore(database, runID, log),
		Sink:          store.NewArtifactStore(filepath.Join(cfg.RunDir, runID), log),
		Logger:        log,
	}

	out, err := engine.Merge(ctx, merge.Input{
		Title:            titleFlag,
		Principles:       principles,
		Examples:         examples,
		RequiredSections: sectionsFlag,
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(mergeOutFlag, []byte(out.Document), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", mergeOutFlag)
	}

	rows := pterm.TableData{{"Validator", "Score", "Passed"}}
	for _, v := range out.Validators {
		rows = append(rows, []string{v.Name, pterm.Sprintf("%.2f", v.Score), pterm.Sprintf("%t", v.Passed)})
	}
	rows = append(rows, []string{"confidence", pterm.Sprintf("%.3f", out.Confidence), pterm.Sprintf("%t", out.Converged)})
	pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	pterm.Success.Printfln("%s %s (%d iterations)", sym.Done, mergeOutFlag, out.Iterations)
	return nil
}

// readLines loads the non-empty, non-comment lines of a file.
func readLines(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	var lines []string
	for _, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(strings.TrimLeft(line, "-* "))
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lines = append(lines, trimmed)
	}
	if len(lines) == 0 {
		return nil, errors.Newf("no principles found in %s", path)
	}
	return lines, nil
}

// readFiles loads every regular file in dir.
func readFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", dir)
	}
	var contents []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", e.Name())
		}
		contents = append(contents, string(raw))
	}
	return contents, nil
}
