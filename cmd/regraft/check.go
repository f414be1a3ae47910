package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/regraft"
	"github.com/jward/regraft/internal/config"
	"github.com/jward/regraft/rules"
)

var (
	flagForce     bool
	flagLanguages string
	flagRulesDir  string
	flagSerial    bool
)

var checkCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Check a file or directory",
	Long:  "Parses and analyzes source files, reports diagnostics, and persists results. Files unchanged since the last run are skipped.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&flagForce, "force", false, "delete database and check from scratch")
	checkCmd.Flags().StringVar(&flagLanguages, "languages", "", "comma-separated language filter (e.g. go,python)")
	checkCmd.Flags().StringVar(&flagRulesDir, "rules-dir", "", "load rule scripts from disk instead of embedded")
	checkCmd.Flags().BoolVar(&flagSerial, "serial", false, "check files one at a time")
}

func runCheck(cmd *cobra.Command, args []string) error {
	start := time.Now()

	target, err := resolveTarget(args)
	if err != nil {
		return err
	}
	targetDir := target
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		targetDir = filepath.Dir(target)
	}

	repoRoot := findRepoRoot(targetDir)
	dbPath := resolveDBPath(repoRoot)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}
	if flagForce {
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing database for --force: %w", err)
		}
	}

	engine, err := newEngine(dbPath, targetDir)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := context.Background()
	var results []regraft.FileResult
	if targetDir == target {
		results, err = engine.CheckDirectory(ctx, target)
	} else {
		results, err = engine.CheckFiles(ctx, []string{target})
	}
	if err != nil {
		return fmt.Errorf("checking: %w", err)
	}

	if err := outputResults(os.Stdout, flagFormat, results); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Checked %s in %s\n", target, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath)
	return nil
}

// newEngine builds an Engine from the flags and the optional project
// configuration found next to the target.
func newEngine(dbPath, targetDir string) (*regraft.Engine, error) {
	cfg, err := config.LoadOptional(targetDir)
	if err != nil {
		return nil, err
	}

	opts := []regraft.Option{regraft.WithConfig(cfg)}
	if flagLanguages != "" {
		langs := strings.Split(flagLanguages, ",")
		for i := range langs {
			langs[i] = strings.TrimSpace(langs[i])
		}
		opts = append(opts, regraft.WithLanguages(langs...))
	}
	if flagRulesDir != "" {
		opts = append(opts, regraft.WithRulesFS(os.DirFS(flagRulesDir)))
	} else {
		opts = append(opts, regraft.WithRulesFS(rules.FS))
	}
	if flagSerial {
		opts = append(opts, regraft.WithParallel(false))
	}

	engine, err := regraft.New(dbPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return engine, nil
}
