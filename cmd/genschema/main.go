// Command genschema generates JSON Schema and markdown reference docs
// from civreg's Go config structs. Run from the repository root:
//
//	go run ./cmd/genschema
//
// Output:
//
//	docs/schema/civreg-schema.json
//	docs/reference/config.md
//	docs/reference/cli.md
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/civreg/civreg/internal/docgen"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "genschema: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Validate we're at repo root.
	if _, err := os.Stat("go.mod"); err != nil {
		return fmt.Errorf("must run from repository root (go.mod not found)")
	}

	for _, dir := range []string{"docs/schema", "docs/reference"} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	schema, err := docgen.GenerateConfigSchema()
	if err != nil {
		return fmt.Errorf("generating config schema: %w", err)
	}
	if err := writeSchema("docs/schema/civreg-schema.json", schema); err != nil {
		return err
	}
	if err := docgen.WriteMarkdown("docs/reference/config.md", schema); err != nil {
		return fmt.Errorf("writing config.md: %w", err)
	}

	// Generate the CLI reference via "civreg gen-doc", which has access
	// to the real command tree.
	genDoc := exec.Command("go", "run", "./cmd/civreg", "gen-doc")
	genDoc.Stdout = os.Stdout
	genDoc.Stderr = os.Stderr
	if err := genDoc.Run(); err != nil {
		return fmt.Errorf("generating CLI docs: %w", err)
	}

	files := []string{
		"docs/schema/civreg-schema.json",
		"docs/reference/config.md",
		"docs/reference/cli.md",
	}
	fmt.Println("Generated:")
	for _, f := range files {
		fmt.Printf("  %s\n", f)
	}
	return nil
}

// writeSchema writes a JSON Schema to a file using atomic write (temp + rename).
func writeSchema(path string, s *jsonschema.Schema) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".genschema-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}
