package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/refinery/unit"
)

func TestWriteArtifactJSONEnvelope(t *testing.T) {
	dir := t.TempDir()
	s := NewArtifactStore(dir, nil)

	path, err := s.WriteArtifact(context.Background(), &unit.Artifact{
		Stage:    "matching",
		Name:     "match_target",
		Content:  json.RawMessage(`{"match_score": 0.9}`),
		Format:   "json",
		Metadata: map[string]string{"target": "t1"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, filepath.Join(dir, "matching")))
	assert.True(t, strings.HasSuffix(path, ".json"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var envelope struct {
		Output   json.RawMessage   `json:"output"`
		Metadata map[string]string `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, "t1", envelope.Metadata["target"])
	assert.JSONEq(t, `{"match_score": 0.9}`, string(envelope.Output))
}

func TestWriteArtifactPlainText(t *testing.T) {
	dir := t.TempDir()
	s := NewArtifactStore(dir, nil)

	path, err := s.WriteArtifact(context.Background(), &unit.Artifact{
		Stage:   "writing_polishing",
		Name:    "draft_document",
		Content: []byte("plain draft"),
		Format:  "md",
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "plain draft", string(raw), "non-JSON artifacts are written raw")
}

func TestWriteArtifactNamesAvoidCollisions(t *testing.T) {
	dir := t.TempDir()
	s := NewArtifactStore(dir, nil)

	a := &unit.Artifact{Stage: "pruning", Name: "render", Content: []byte("x"), Format: "txt"}
	p1, err := s.WriteArtifact(context.Background(), a)
	require.NoError(t, err)
	p2, err := s.WriteArtifact(context.Background(), a)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}
