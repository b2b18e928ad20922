// Package store persists run state: artifacts on the filesystem, version
// history and checkpoints in SQLite.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/sym"
	"github.com/teranos/refinery/unit"
)

// ArtifactStore writes unit artifacts under a run directory using the
// layout {root}/{stage}/{name}_{timestamp}.{format}. The timestamp in the
// filename keeps concurrent units from colliding.
type ArtifactStore struct {
	root   string
	logger *zap.SugaredLogger

	now func() time.Time // injectable for tests
}

// NewArtifactStore creates an ArtifactStore rooted at dir.
func NewArtifactStore(dir string, log *zap.SugaredLogger) *ArtifactStore {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ArtifactStore{root: dir, logger: log, now: time.Now}
}

// artifactEnvelope wraps artifact content with its metadata for JSON
// artifacts. Text and markup artifacts are written raw; their metadata
// lives only in the version/checkpoint trail.
type artifactEnvelope struct {
	Output   json.RawMessage   `json:"output"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// WriteArtifact persists one artifact and returns its path. Implements
// unit.ArtifactSink.
func (s *ArtifactStore) WriteArtifact(ctx context.Context, a *unit.Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, "write artifact")
	}

	dir := filepath.Join(s.root, a.Stage)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create artifact dir %s", dir)
	}

	ext := a.Format
	if ext == "" {
		ext = "json"
	}
	filename := fmt.Sprintf("%s_%s.%s", a.Name, s.now().UTC().Format("20060102T150405.000000000"), ext)
	path := filepath.Join(dir, filename)

	content := a.Content
	if ext == "json" {
		wrapped, err := json.MarshalIndent(artifactEnvelope{
			Output:   a.Content,
			Metadata: a.Metadata,
		}, "", "  ")
		if err != nil {
			return "", errors.Wrapf(err, "wrap artifact %s", a.Name)
		}
		content = wrapped
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", errors.Wrapf(err, "write artifact %s", path)
	}

	s.logger.Debugw("Artifact stored",
		"symbol", sym.Doc,
		"stage", a.Stage,
		"name", a.Name,
		"path", path,
		"bytes", len(content),
	)
	return path, nil
}
