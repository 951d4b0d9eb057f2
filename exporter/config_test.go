package exporter

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vmp.yaml")
	data := `
listen: ":9000"
browser:
  remote: "ws://chrome:9222"
ffmpeg:
  fetch_url: "https://example.com/ffmpeg"
jobs:
  db_path: "/tmp/jobs.db"
defaults:
  format: webm
  fps: 24
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Browser.Remote != "ws://chrome:9222" {
		t.Errorf("browser remote = %q", cfg.Browser.Remote)
	}
	if cfg.FFmpeg.FetchURL != "https://example.com/ffmpeg" {
		t.Errorf("fetch url = %q", cfg.FFmpeg.FetchURL)
	}
	if cfg.Jobs.DBPath != "/tmp/jobs.db" {
		t.Errorf("db path = %q", cfg.Jobs.DBPath)
	}
	if cfg.Defaults.Format != FormatWebM {
		t.Errorf("default format = %q", cfg.Defaults.Format)
	}
	if cfg.Defaults.FPS != 24 {
		t.Errorf("default fps = %v", cfg.Defaults.FPS)
	}
	// Unset defaults still get filled.
	if cfg.Defaults.Quality == nil || *cfg.Defaults.Quality != 0.8 {
		t.Errorf("default quality = %v", cfg.Defaults.Quality)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Listen == "" || cfg.Jobs.DBPath == "" {
		t.Fatalf("defaults incomplete: %+v", cfg)
	}
	if cfg.Defaults.FPS != 30 || cfg.Defaults.Format != FormatGIF {
		t.Fatalf("default settings = %+v", cfg.Defaults)
	}
	// Zero duration means the capture window comes from markup analysis.
	if cfg.Defaults.Duration != 0 {
		t.Fatalf("duration = %v, want 0", cfg.Defaults.Duration)
	}
}

func TestLoadConfigFileMissing(t *testing.T) {
	if _, err := LoadConfigFile("/nonexistent/vmp.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
