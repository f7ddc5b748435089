package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitScaffoldsWorkspace(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "townhall")

	var stdout, stderr bytes.Buffer
	code := run([]string{"init", dir}, &stdout, &stderr)
	if code != 0 {
		if strings.Contains(stderr.String(), "fts5") {
			t.Skipf("sqlite built without fts5: %s", stderr.String())
		}
		t.Fatalf("run([init]) = %d, want 0; stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"townhall"`) {
		t.Errorf("stdout missing workspace name: %q", stdout.String())
	}

	for _, sub := range []string{"records", "config", "exports", "backups", ".civreg"} {
		fi, err := os.Stat(filepath.Join(dir, sub))
		if err != nil {
			t.Errorf("%s: %v", sub, err)
		} else if !fi.IsDir() {
			t.Errorf("%s: not a directory", sub)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "civreg.toml")); err != nil {
		t.Errorf("civreg.toml: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".civreg", "registry.db")); err != nil {
		t.Errorf("registry.db: %v", err)
	}
}

func TestInitRefusesExistingConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "civreg.toml"), []byte("[workspace]\nname = \"x\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stderr bytes.Buffer
	code := run([]string{"init", dir}, &bytes.Buffer{}, &stderr)
	if code != 1 {
		t.Errorf("run([init existing]) = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "already exists") {
		t.Errorf("stderr = %q, want 'already exists'", stderr.String())
	}
}

func TestInitExplicitName(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "county-clerk")

	var stdout, stderr bytes.Buffer
	code := run([]string{"init", dir, "--name", "clerk"}, &stdout, &stderr)
	if code != 0 {
		if strings.Contains(stderr.String(), "fts5") {
			t.Skipf("sqlite built without fts5: %s", stderr.String())
		}
		t.Fatalf("run([init --name]) = %d, want 0; stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"clerk"`) {
		t.Errorf("stdout missing explicit name: %q", stdout.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, "civreg.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `name = "clerk"`) {
		t.Errorf("config missing workspace name: %s", data)
	}
}
