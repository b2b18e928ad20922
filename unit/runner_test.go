package unit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/gen"
)

// fakeUnit is a configurable unit for pipeline tests.
type fakeUnit struct {
	name        string
	validateErr error
	response    *gen.Response
	executeErr  error
}

func (u *fakeUnit) Name() string { return u.name }
func (u *fakeUnit) Kind() string { return "generation" }

func (u *fakeUnit) Validate(input string) error {
	return u.validateErr
}

func (u *fakeUnit) Execute(ctx context.Context, input string) (*gen.Response, error) {
	if u.executeErr != nil {
		return nil, u.executeErr
	}
	return u.response, nil
}

func (u *fakeUnit) Format(raw *gen.Response) (string, error) {
	var s string
	if err := raw.Decode(&s); err != nil {
		return "", err
	}
	return s, nil
}

// recordingSink counts artifact writes.
type recordingSink struct {
	artifacts []*Artifact
}

func (s *recordingSink) WriteArtifact(_ context.Context, a *Artifact) (string, error) {
	s.artifacts = append(s.artifacts, a)
	return "/tmp/" + a.Name, nil
}

func TestRunnerValidationFailureWritesNoArtifact(t *testing.T) {
	sink := &recordingSink{}
	u := &fakeUnit{name: "draft", validateErr: errors.New("empty input")}
	r := NewRunner[string, string](u, "writing_polishing", sink, nil)

	_, err := r.Run(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrValidationFailed)
	assert.Empty(t, sink.artifacts, "validation failure must not persist an artifact")
}

func TestRunnerSuccessWritesExactlyOneArtifact(t *testing.T) {
	sink := &recordingSink{}
	u := &fakeUnit{name: "draft", response: gen.Text("a draft")}
	r := NewRunner[string, string](u, "writing_polishing", sink, nil)

	out, err := r.Run(context.Background(), "input")
	require.NoError(t, err)
	assert.Equal(t, "a draft", out)
	require.Len(t, sink.artifacts, 1)
	assert.Equal(t, "writing_polishing", sink.artifacts[0].Stage)
	assert.Equal(t, "draft", sink.artifacts[0].Name)
}

func TestRunnerArtifactCarriesProvenanceMetadata(t *testing.T) {
	sink := &recordingSink{}
	u := &fakeUnit{name: "draft", response: gen.Text("a draft")}
	r := NewRunner[string, string](u, "writing_polishing", sink, nil)

	before := time.Now().UTC()
	_, err := r.Run(context.Background(), "input")
	require.NoError(t, err)

	require.Len(t, sink.artifacts, 1)
	meta := sink.artifacts[0].Metadata
	require.NotNil(t, meta)
	assert.Equal(t, "draft", meta["unit"])
	assert.Equal(t, "generation", meta["kind"])
	assert.Equal(t, "writing_polishing", meta["stage"])
	assert.NotEmpty(t, meta["duration"])

	start, err := time.Parse(time.RFC3339Nano, meta["start"])
	require.NoError(t, err)
	end, err := time.Parse(time.RFC3339Nano, meta["end"])
	require.NoError(t, err)
	assert.False(t, start.Before(before.Truncate(time.Second)))
	assert.False(t, end.Before(start))
}

func TestRunnerArtifacterMetadataIsNotOverwritten(t *testing.T) {
	sink := &recordingSink{}
	u := &shapedUnit{fakeUnit{name: "report", response: gen.Text("body")}}
	r := NewRunner[string, string](u, "writing_polishing", sink, nil)

	_, err := r.Run(context.Background(), "input")
	require.NoError(t, err)

	require.Len(t, sink.artifacts, 1)
	meta := sink.artifacts[0].Metadata
	assert.Equal(t, "custom-kind", meta["kind"], "Artifacter keys win over the runner's tags")
	assert.Equal(t, "report", meta["unit"])
	assert.NotEmpty(t, meta["start"])
	assert.NotEmpty(t, meta["end"])
}

// shapedUnit provides its own artifact with one metadata key pre-set.
type shapedUnit struct {
	fakeUnit
}

func (u *shapedUnit) Artifact(output string) (*Artifact, error) {
	return &Artifact{
		Name:     u.name,
		Content:  []byte(output),
		Format:   "md",
		Metadata: map[string]string{"kind": "custom-kind"},
	}, nil
}

func TestRunnerPendingResponseIsAnError(t *testing.T) {
	sink := &recordingSink{}
	u := &fakeUnit{
		name: "draft",
		response: &gen.Response{
			Pending: &gen.Request{Task: "draft_document", Kind: gen.KindGenerate},
		},
	}
	r := NewRunner[string, string](u, "writing_polishing", sink, nil)

	_, err := r.Run(context.Background(), "input")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPendingCall)
	assert.Empty(t, sink.artifacts, "a pending result must never be persisted")
}

func TestRunnerExecuteErrorWrapsUnitName(t *testing.T) {
	u := &fakeUnit{name: "draft", executeErr: errors.New("backend down")}
	r := NewRunner[string, string](u, "writing_polishing", nil, nil)

	_, err := r.Run(context.Background(), "input")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "draft")
	assert.Contains(t, err.Error(), "backend down")
}

func TestRunnerNilSinkSkipsPersistence(t *testing.T) {
	u := &fakeUnit{name: "eval", response: gen.Text("ok")}
	r := NewRunner[string, string](u, "writing_polishing", nil, nil)

	out, err := r.Run(context.Background(), "input")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}
