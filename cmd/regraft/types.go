package main

// CLI output shapes. JSON output marshals these directly; text output
// renders them with tabwriter.

// CLIResult summarizes one checked file.
type CLIResult struct {
	Path        string          `json:"path"`
	Language    string          `json:"language"`
	Skipped     bool            `json:"skipped"`
	Changed     []string        `json:"changed,omitempty"`
	Diagnostics []CLIDiagnostic `json:"diagnostics,omitempty"`
}

// CLIDiagnostic is one finding.
type CLIDiagnostic struct {
	File     string `json:"file"`
	Decl     string `json:"decl,omitempty"`
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Start    uint32 `json:"start"`
	End      uint32 `json:"end"`
}

// CLIElement is one structure element of a file.
type CLIElement struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Start    uint32 `json:"start"`
	End      uint32 `json:"end"`
	Decls    int    `json:"decls"`
	Stamp    uint64 `json:"stamp"`
	UpToDate bool   `json:"up_to_date"`
}
