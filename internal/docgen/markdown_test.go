package docgen

import (
	"bytes"
	"strings"
	"testing"
)

func renderConfigMarkdown(t *testing.T) string {
	t.Helper()
	s, err := GenerateConfigSchema()
	if err != nil {
		t.Fatalf("GenerateConfigSchema: %v", err)
	}
	var buf bytes.Buffer
	if err := RenderMarkdown(&buf, s); err != nil {
		t.Fatalf("RenderMarkdown: %v", err)
	}
	return buf.String()
}

func TestRenderMarkdownConfigSchema(t *testing.T) {
	md := renderConfigMarkdown(t)
	if md == "" {
		t.Fatal("empty markdown output")
	}

	for _, section := range []string{"## Config", "## Workspace", "## Storage", "## Cache", "## Diagnostics"} {
		if !strings.Contains(md, section) {
			t.Errorf("missing section %q", section)
		}
	}

	// The root type renders before its sub-tables.
	configIdx := strings.Index(md, "## Config")
	cacheIdx := strings.Index(md, "## Cache")
	if configIdx > cacheIdx {
		t.Error("Config section should come before Cache section")
	}
}

func TestRenderMarkdownTableFormat(t *testing.T) {
	md := renderConfigMarkdown(t)

	for _, line := range strings.Split(md, "\n") {
		if !strings.HasPrefix(line, "|") {
			continue
		}
		// Five columns means six unescaped pipes per row.
		pipes := strings.Count(line, "|") - strings.Count(line, "\\|")
		if pipes != 6 {
			t.Errorf("table row has %d columns (expected 5): %s", pipes-1, line)
		}
	}
}

func TestRenderMarkdownRequiredFields(t *testing.T) {
	md := renderConfigMarkdown(t)

	if !strings.Contains(md, "| `data_dir` | string | **yes**") {
		t.Error("Storage.data_dir not marked as required in markdown")
	}
}
