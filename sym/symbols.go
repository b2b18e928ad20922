// Package sym defines canonical symbols for refinery stages and system
// markers. These symbols are stable across CLI output, logs, and
// documentation: a reader scanning interleaved log lines can pick out a
// stage by its glyph faster than by a word.
package sym

// Pipeline stage symbols.
const (
	Init  = "◌" // initialization — run scaffolding, version zero
	Match = "⋈" // matching — source material against target specs
	Write = "✎" // writing & polishing — drafting and refinement loops
	Prune = "✂" // pruning — length reduction under quality constraints
	Merge = "⊕" // merging — guideline synthesis with validation
	Done  = "✔" // completed — terminal success
	Fail  = "✗" // failed — terminal failure
)

// System infrastructure symbols.
const (
	Pool = "꩜" // concurrency pool, admission and dispatch
	DB   = "⊔" // database/storage layer
	Doc  = "▤" // document/artifact content
	Gen  = "✦" // delegated generative call
)

// ForStage returns the glyph for a stage name, or an empty string for
// stages without one. Loggers pass the result as a "symbol" field.
func ForStage(stage string) string {
	switch stage {
	case "initialization":
		return Init
	case "matching":
		return Match
	case "writing_polishing":
		return Write
	case "pruning":
		return Prune
	case "merging":
		return Merge
	case "completed":
		return Done
	case "failed":
		return Fail
	}
	return ""
}
