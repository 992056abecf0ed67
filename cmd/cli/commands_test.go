package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wadjakorntonsri/tinylink/pkg/adapters/repository"
	"github.com/wadjakorntonsri/tinylink/pkg/config"
	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
)

func runCLI(t *testing.T, dbURL string, args ...string) (string, error) {
	t.Helper()
	cfg := &config.Config{DatabaseURL: dbURL, BaseURL: "https://sho.rt"}
	root := newRootCmd(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), repository.Open)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLILifecycle(t *testing.T) {
	dir := t.TempDir()
	dbURL := "file:" + filepath.Join(dir, "cli.db")

	out, err := runCLI(t, dbURL, "create", "--url", "https://example.com/cli", "--code", "cliln1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.Contains(out, "https://sho.rt/r/cliln1") {
		t.Errorf("unexpected create output: %s", out)
	}

	if _, err := runCLI(t, dbURL, "create", "--url", "https://example.com/dup", "--code", "cliln1"); !domain.IsConflict(err) {
		t.Errorf("expected conflict on duplicate code, got %v", err)
	}
	if _, err := runCLI(t, dbURL, "create"); err == nil {
		t.Error("expected an error without --url")
	}

	if _, err := runCLI(t, dbURL, "rename", "cliln1", "cliln2"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	out, err = runCLI(t, dbURL, "stats")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Links: 1") {
		t.Errorf("unexpected stats output: %s", out)
	}

	out, err = runCLI(t, dbURL, "export")
	if err != nil {
		t.Fatal(err)
	}
	var exported []domain.Link
	if err := json.Unmarshal([]byte(out), &exported); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if len(exported) != 1 || exported[0].Code != "cliln2" {
		t.Fatalf("unexpected export: %+v", exported)
	}

	// Import into a fresh database keeps the codes.
	file := filepath.Join(dir, "links.json")
	if err := os.WriteFile(file, []byte(out), 0o600); err != nil {
		t.Fatal(err)
	}
	fresh := "file:" + filepath.Join(dir, "fresh.db")
	out, err = runCLI(t, fresh, "import", "--file", file)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "Imported 1 links, skipped 0") {
		t.Errorf("unexpected import output: %s", out)
	}
	out, err = runCLI(t, fresh, "import", "--file", file)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if !strings.Contains(out, "Imported 0 links, skipped 1") {
		t.Errorf("duplicate import should skip: %s", out)
	}

	if _, err := runCLI(t, dbURL, "delete", "abc"); err == nil {
		t.Error("expected an error for a non-numeric id")
	}
	if _, err := runCLI(t, dbURL, "delete", "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := runCLI(t, dbURL, "delete", "1"); !domain.IsNotFound(err) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}
