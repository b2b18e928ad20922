// Package run holds the mutable state of one orchestration run and the
// sequencer that advances it through the stage pipeline, checkpointing on
// every transition.
package run

import "github.com/teranos/refinery/errors"

// Stage is one step in the run pipeline. Stages only ever advance; a run
// never revisits an earlier stage.
type Stage string

const (
	StageInitialization    Stage = "initialization"
	StageMatching          Stage = "matching"
	StageWritingPolishing  Stage = "writing_polishing"
	StagePruning           Stage = "pruning"
	StageMerging           Stage = "merging"
	StageCompleted         Stage = "completed"
	StageFailed            Stage = "failed"
)

// order maps each stage to its pipeline position. Terminal stages share
// the highest position so either is reachable from any working stage.
var order = map[Stage]int{
	StageInitialization:   0,
	StageMatching:         1,
	StageWritingPolishing: 2,
	StagePruning:          3,
	StageMerging:          4,
	StageCompleted:        5,
	StageFailed:           5,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := order[s]
	return ok
}

// Terminal reports whether s ends the run.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// CanAdvanceTo reports whether a transition from s to next is forward-only.
func (s Stage) CanAdvanceTo(next Stage) error {
	if !next.Valid() {
		return errors.Wrapf(errors.ErrInvalidArgument, "unknown stage %q", next)
	}
	if s.Terminal() {
		return errors.Newf("run already terminal in stage %q", s)
	}
	if order[next] <= order[s] {
		return errors.Newf("cannot move backward from %q to %q", s, next)
	}
	return nil
}
