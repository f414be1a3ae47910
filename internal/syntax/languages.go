package syntax

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
)

// extToLanguage maps file extensions to canonical language names.
var extToLanguage = map[string]string{
	".go": "go",
	".py": "python",
}

// langToGrammar maps language names to tree-sitter Language objects.
// Lazily initialized on first call via sync.Once.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"go":     golang.GetLanguage(),
			"python": python.GetLanguage(),
		}
	})
}

// LanguageForFile returns the canonical language name for a file path,
// based on its extension. The second return value is false for
// unsupported extensions.
func LanguageForFile(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extToLanguage[ext]
	return lang, ok
}

// GrammarFor returns the tree-sitter grammar for a language name.
func GrammarFor(language string) (*sitter.Language, bool) {
	initGrammars()
	g, ok := langToGrammar[language]
	return g, ok
}

// SupportedLanguages returns the canonical names of all supported languages.
func SupportedLanguages() []string {
	initGrammars()
	langs := make([]string, 0, len(langToGrammar))
	for name := range langToGrammar {
		langs = append(langs, name)
	}
	return langs
}
