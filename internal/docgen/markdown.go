package docgen

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
)

// regenNote appears at the top of every generated document.
const regenNote = "> **Auto-generated** — do not edit. Run `go run ./cmd/genschema` to regenerate.\n\n"

// RenderMarkdown writes a markdown reference document from a JSON Schema.
// It walks the $defs, rendering one section per type with a table of fields.
// The root type sorts first; the rest are alphabetical.
func RenderMarkdown(w io.Writer, s *jsonschema.Schema) error {
	title := s.Title
	if title == "" {
		title = "Configuration Reference"
	}
	if _, err := fmt.Fprintf(w, "# %s\n\n", title); err != nil {
		return err
	}
	if s.Description != "" {
		if _, err := fmt.Fprintf(w, "%s\n\n", s.Description); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, regenNote); err != nil {
		return err
	}
	if s.Definitions == nil {
		return nil
	}

	rootName := refName(s.Ref)
	var names []string
	for name := range s.Definitions {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i] == rootName || names[j] == rootName {
			return names[i] == rootName
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		if err := renderDefinition(w, name, s.Definitions[name]); err != nil {
			return err
		}
	}
	return nil
}

// renderDefinition writes one "## TypeName" section with its field table.
func renderDefinition(w io.Writer, name string, def *jsonschema.Schema) error {
	if def == nil || def.Properties == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "## %s\n\n", name); err != nil {
		return err
	}
	if def.Description != "" {
		if _, err := fmt.Fprintf(w, "%s\n\n", def.Description); err != nil {
			return err
		}
	}

	required := make(map[string]bool)
	for _, r := range def.Required {
		required[r] = true
	}

	if _, err := io.WriteString(w, "| Field | Type | Required | Default | Description |\n|-------|------|----------|---------|-------------|\n"); err != nil {
		return err
	}
	for pair := def.Properties.Oldest(); pair != nil; pair = pair.Next() {
		req := ""
		if required[pair.Key] {
			req = "**yes**"
		}
		if _, err := fmt.Fprintf(w, "| `%s` | %s | %s | %s | %s |\n",
			pair.Key, schemaTypeString(pair.Value), req, formatDefault(pair.Value), formatDescription(pair.Value)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

// WriteMarkdown generates a markdown file from a schema using atomic write.
func WriteMarkdown(path string, s *jsonschema.Schema) error {
	return writeAtomic(path, func(w io.Writer) error { return RenderMarkdown(w, s) })
}

// writeAtomic renders into a temp file in the target directory, then
// renames it over path.
func writeAtomic(path string, render func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".docgen-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if err := render(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("rendering %s: %w", path, err)
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

// schemaTypeString returns a human-readable type string for a property.
func schemaTypeString(prop *jsonschema.Schema) string {
	if prop.Ref != "" {
		return refName(prop.Ref)
	}
	switch prop.Type {
	case "array":
		if prop.Items == nil {
			return "array"
		}
		if prop.Items.Ref != "" {
			return "[]" + refName(prop.Items.Ref)
		}
		return "[]" + prop.Items.Type
	case "object":
		if prop.AdditionalProperties == nil {
			return "object"
		}
		if prop.AdditionalProperties.Ref != "" {
			return "map[string]" + refName(prop.AdditionalProperties.Ref)
		}
		return "map[string]" + prop.AdditionalProperties.Type
	case "":
		return "any"
	default:
		return prop.Type
	}
}

// refName extracts the type name from a $ref path like "#/$defs/Cache".
func refName(ref string) string {
	parts := strings.Split(ref, "/")
	return parts[len(parts)-1]
}

func formatDefault(prop *jsonschema.Schema) string {
	if prop.Default == nil {
		return ""
	}
	return fmt.Sprintf("`%v`", prop.Default)
}

// formatDescription returns the description, appending enum values if
// present, cleaned for markdown table cells.
func formatDescription(prop *jsonschema.Schema) string {
	desc := prop.Description
	if len(prop.Enum) > 0 {
		vals := make([]string, len(prop.Enum))
		for i, v := range prop.Enum {
			vals[i] = fmt.Sprintf("`%v`", v)
		}
		enumStr := "Enum: " + strings.Join(vals, ", ")
		if desc != "" {
			desc += " " + enumStr
		} else {
			desc = enumStr
		}
	}
	desc = strings.ReplaceAll(desc, "\n", " ")
	return strings.ReplaceAll(desc, "|", "\\|")
}
