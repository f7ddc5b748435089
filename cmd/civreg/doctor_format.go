package main

import (
	"encoding/json"
	"fmt"
	"io"

	toon "github.com/toon-format/toon-go"

	"github.com/civreg/civreg/internal/diag"
)

// printJSONReport writes the report as indented JSON.
func printJSONReport(w io.Writer, r *diag.Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printToonReport writes the report in TOON format, with checks and
// issues as tabular sections per component.
func printToonReport(w io.Writer, r *diag.Report) error {
	components := make([]toon.Object, len(r.Components))
	for i, comp := range r.Components {
		checks := make([]toon.Object, len(comp.Checks))
		for j, c := range comp.Checks {
			checks[j] = toon.NewObject(
				toon.Field{Key: "name", Value: c.Name},
				toon.Field{Key: "status", Value: string(c.Status)},
				toon.Field{Key: "message", Value: c.Message},
			)
		}
		issues := make([]toon.Object, len(comp.Issues))
		for j, is := range comp.Issues {
			issues[j] = toon.NewObject(
				toon.Field{Key: "id", Value: is.ID},
				toon.Field{Key: "severity", Value: string(is.Severity)},
				toon.Field{Key: "message", Value: is.Message},
				toon.Field{Key: "autoFixable", Value: is.AutoFixable},
			)
		}
		components[i] = toon.NewObject(
			toon.Field{Key: "component", Value: comp.Component},
			toon.Field{Key: "status", Value: string(comp.Status)},
			toon.Field{Key: "checks", Value: checks},
			toon.Field{Key: "issues", Value: issues},
		)
	}

	doc := toon.NewObject(
		toon.Field{Key: "overallStatus", Value: string(r.OverallStatus)},
		toon.Field{Key: "summary", Value: r.Summary},
		toon.Field{Key: "components", Value: components},
	)
	result, err := toon.MarshalString(doc)
	if err != nil {
		return fmt.Errorf("toon marshal error: %w", err)
	}
	_, err = fmt.Fprintln(w, result)
	return err
}
