package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var (
	flagDB      string
	flagFormat  string
	flagVerbose int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "regraft",
	Short:         "Incremental diagnostics for source code",
	Long:          "Regraft parses source files with tree-sitter, runs built-in and Risor rules over a declaration-level structure, and caches results in SQLite so unchanged code is never re-checked.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		commonlog.Configure(flagVerbose, nil)
		return validateFormat(flagFormat)
	},
	// No Run; prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .regraft/results.db relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format: json|text")
	rootCmd.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "increase log verbosity")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(structureCmd)
	rootCmd.AddCommand(diagnosticsCmd)
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag or the default.
func resolveDBPath(repoRoot string) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(repoRoot, flagDB)
	}
	return filepath.Join(repoRoot, ".regraft", "results.db")
}

// resolveTarget returns the absolute path of the file or directory to check.
func resolveTarget(args []string) (string, error) {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", target, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("path not found: %s", abs)
	}
	return abs, nil
}
