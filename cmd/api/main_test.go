package main

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"cityflow/neurotraff/config"
)

func TestLoadScorerMissingArtifacts(t *testing.T) {
	dir := t.TempDir()
	cfg := config.ArtifactsConfig{
		PipelinePath:   filepath.Join(dir, "pipeline.json"),
		ClassifierPath: filepath.Join(dir, "classifier.json"),
	}

	scorer, err := loadScorer(cfg)
	if err != nil {
		t.Fatalf("loadScorer() error = %v, want degraded start", err)
	}
	if scorer != nil {
		t.Errorf("loadScorer() = %v, want nil scorer", scorer)
	}

	cfg.Required = true
	scorer, err = loadScorer(cfg)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("loadScorer() error = %v, want fs.ErrNotExist", err)
	}
	if scorer != nil {
		t.Errorf("loadScorer() = %v, want nil scorer", scorer)
	}
}
