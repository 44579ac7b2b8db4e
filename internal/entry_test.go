package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func importConfig(t *testing.T, files map[string]string) *Config {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := NewDefaultConfig()
	cfg.App.LogLevel = slog.LevelError
	cfg.Graph.Path = dir
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "graph.db")
	return cfg
}

func TestRunImport_WritesReport(t *testing.T) {
	cfg := importConfig(t, map[string]string{
		"pages/alpha.md":         "- see [[Beta]]\n",
		"journals/2024_01_02.md": "- day\n",
	})

	var out bytes.Buffer
	if err := RunImport(context.Background(), WithConfig(cfg), WithOutput(&out)); err != nil {
		t.Fatalf("RunImport: %v", err)
	}

	var report struct {
		Imported []string `json:"imported"`
		Failed   []string `json:"failed"`
	}
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out.String())
	}
	if len(report.Imported) != 2 || len(report.Failed) != 0 {
		t.Errorf("report = %+v", report)
	}

	// A second run finds nothing changed.
	out.Reset()
	if err := RunImport(context.Background(), WithConfig(cfg), WithOutput(&out)); err != nil {
		t.Fatalf("second RunImport: %v", err)
	}
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if len(report.Imported) != 0 {
		t.Errorf("unchanged files re-imported: %v", report.Imported)
	}
}

func TestRunImport_FailedFile(t *testing.T) {
	cfg := importConfig(t, map[string]string{
		"whiteboards/board.json": `{"page":{"title":"Board"},"blocks":[{"content":"[[Nowhere]]"}]}`,
	})
	var out bytes.Buffer
	if err := RunImport(context.Background(), WithConfig(cfg), WithOutput(&out)); err == nil {
		t.Fatal("expected error for failed file")
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := RunImport(context.Background()); err == nil {
		t.Error("expected error without config")
	}
}
