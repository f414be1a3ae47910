package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jward/regraft"
)

func validateFormat(format string) error {
	switch format {
	case "json", "text":
		return nil
	default:
		return fmt.Errorf("invalid format %q (want json or text)", format)
	}
}

func outputResults(w io.Writer, format string, results []regraft.FileResult) error {
	out := make([]CLIResult, 0, len(results))
	for _, r := range results {
		cr := CLIResult{
			Path:     r.Path,
			Language: r.Language,
			Skipped:  r.Skipped,
			Changed:  r.Changed,
		}
		for _, d := range r.Diagnostics {
			cr.Diagnostics = append(cr.Diagnostics, CLIDiagnostic{
				File:     r.Path,
				Rule:     d.Rule,
				Severity: d.Severity.String(),
				Message:  d.Message,
				Start:    d.StartByte,
				End:      d.EndByte,
			})
		}
		out = append(out, cr)
	}
	if format == "json" {
		return writeJSON(w, out)
	}
	formatResultsText(w, out)
	return nil
}

func outputDiagnostics(w io.Writer, format string, diags []CLIDiagnostic) error {
	if format == "json" {
		return writeJSON(w, diags)
	}
	formatDiagnosticsText(w, diags)
	return nil
}

func outputElements(w io.Writer, format string, elems []CLIElement) error {
	if format == "json" {
		return writeJSON(w, elems)
	}
	formatElementsText(w, elems)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatResultsText prints one line per file plus its findings.
func formatResultsText(w io.Writer, results []CLIResult) {
	for _, r := range results {
		switch {
		case r.Skipped:
			fmt.Fprintf(w, "%s: unchanged\n", r.Path)
		case len(r.Diagnostics) == 0:
			fmt.Fprintf(w, "%s: ok\n", r.Path)
		default:
			fmt.Fprintf(w, "%s: %d finding(s)\n", r.Path, len(r.Diagnostics))
			for _, d := range r.Diagnostics {
				fmt.Fprintf(w, "  [%s] %s: %s (bytes %d-%d)\n",
					d.Severity, d.Rule, d.Message, d.Start, d.End)
			}
		}
	}
}

// formatDiagnosticsText renders findings as aligned columns.
func formatDiagnosticsText(w io.Writer, diags []CLIDiagnostic) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tRULE\tDECL\tMESSAGE\tSPAN")
	for _, d := range diags {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d-%d\n",
			d.Severity, d.Rule, d.Decl, d.Message, d.Start, d.End)
	}
	tw.Flush()
}

// formatElementsText renders structure elements as aligned columns.
func formatElementsText(w io.Writer, elems []CLIElement) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tSPAN\tDECLS\tSTAMP\tUP-TO-DATE")
	for _, e := range elems {
		fmt.Fprintf(tw, "%s\t%s\t%d-%d\t%d\t%d\t%t\n",
			e.Kind, e.Name, e.Start, e.End, e.Decls, e.Stamp, e.UpToDate)
	}
	tw.Flush()
}
