package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/regraft"
)

var structureCmd = &cobra.Command{
	Use:   "structure <file>",
	Short: "Show a file's element partition",
	Long:  "Parses one file and prints its structure elements: the analysis units diagnostics are cached per.",
	Args:  cobra.ExactArgs(1),
	RunE:  runStructure,
}

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics <file>",
	Short: "Show stored diagnostics for a file",
	Long:  "Prints the diagnostics persisted by the last check of the given file.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiagnostics,
}

func runStructure(cmd *cobra.Command, args []string) error {
	target, err := resolveTarget(args)
	if err != nil {
		return err
	}

	// The structure command is read-only analysis; it works off a
	// throwaway in-memory database.
	engine, err := newEngine(":memory:", findRepoRoot(target))
	if err != nil {
		return err
	}
	defer engine.Close()

	if _, err := engine.CheckFiles(context.Background(), []string{target}); err != nil {
		return fmt.Errorf("analyzing: %w", err)
	}
	st := engine.Structure(target)
	if st == nil {
		return fmt.Errorf("no structure for %s (unsupported language?)", target)
	}

	var elems []CLIElement
	for _, el := range st.Elements() {
		start, end := el.Syntax().Span()
		elems = append(elems, CLIElement{
			Kind:     elementKind(el),
			Name:     el.Semantic().Name,
			Start:    start,
			End:      end,
			Decls:    len(el.Mappings()),
			Stamp:    el.Syntax().ModStamp(),
			UpToDate: el.UpToDate(),
		})
	}
	return outputElements(os.Stdout, flagFormat, elems)
}

func elementKind(el regraft.StructureElement) string {
	switch el.(type) {
	case *regraft.FileWithoutDeclarations:
		return "file"
	case *regraft.ReanalyzableFunction:
		return "function"
	default:
		return "declaration"
	}
}

func runDiagnostics(cmd *cobra.Command, args []string) error {
	target, err := resolveTarget(args)
	if err != nil {
		return err
	}

	dbPath := resolveDBPath(findRepoRoot(target))
	engine, err := regraft.New(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer engine.Close()

	file, err := engine.Store().FileByPath(target)
	if err != nil {
		return err
	}
	if file == nil {
		return fmt.Errorf("%s was never checked (run 'regraft check' first)", target)
	}
	rows, err := engine.Store().DiagnosticsByFile(file.ID)
	if err != nil {
		return err
	}

	var diags []CLIDiagnostic
	for _, d := range rows {
		diags = append(diags, CLIDiagnostic{
			File:     file.Path,
			Decl:     d.Decl,
			Rule:     d.Rule,
			Severity: d.Severity,
			Message:  d.Message,
			Start:    d.StartByte,
			End:      d.EndByte,
		})
	}
	return outputDiagnostics(os.Stdout, flagFormat, diags)
}
